package sandbox

// runnerScript is the trusted side of the process boundary. It is written
// into the per-run workspace next to the untrusted tool source and is the
// only code the interpreter is asked to start. The exchange format is JSON
// on stdin and a single JSON line on stdout; nothing is shared in memory
// with the parent.
//
// In invoke mode the runner loads the tool module, filters the provided
// arguments down to the parameters the entry point actually declares
// (extra arguments are dropped, not errors), and calls it. In verify mode
// it executes the tool as __main__ so the tool's inline self-test block
// runs without needing task arguments.
const runnerScript = `import inspect
import importlib.util
import json
import runpy
import sys


def load_tool(path):
    spec = importlib.util.spec_from_file_location("candidate_tool", path)
    module = importlib.util.module_from_spec(spec)
    spec.loader.exec_module(module)
    return module


def main():
    request = json.load(sys.stdin)
    path = request["tool_path"]

    if request.get("mode") == "verify":
        runpy.run_path(path, run_name="__main__")
        json.dump({"ok": True}, sys.stdout)
        sys.stdout.write("\n")
        return

    module = load_tool(path)
    entry = getattr(module, request["entry_point"])
    signature = inspect.signature(entry)
    args = request.get("args") or {}

    accepts_kwargs = any(
        p.kind == inspect.Parameter.VAR_KEYWORD
        for p in signature.parameters.values()
    )
    if not accepts_kwargs:
        args = {k: v for k, v in args.items() if k in signature.parameters}

    result = entry(**args)
    json.dump({"ok": True, "result": result}, sys.stdout, default=str)
    sys.stdout.write("\n")


if __name__ == "__main__":
    main()
`
