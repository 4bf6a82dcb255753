package docker

// OpusRunnerScript is piped to `python -` inside the computer-use demo
// container. It reads the task from OPUS_TASK_B64, drives the demo's
// sampling loop and prints the final assistant text.
const OpusRunnerScript = `import asyncio
import base64
import json
import os
import sys

from computer_use_demo.loop import APIProvider, sampling_loop


def _read_task() -> str:
    task_b64 = os.environ.get("OPUS_TASK_B64", "")
    if not task_b64:
        raise RuntimeError("Missing OPUS_TASK_B64")
    raw = base64.urlsafe_b64decode(task_b64.encode("utf-8"))
    data = json.loads(raw.decode("utf-8"))
    task = data.get("task")
    if not isinstance(task, str) or not task.strip():
        raise RuntimeError("Invalid task")
    return task.strip()


def _extract_final_text(messages):
    for msg in reversed(messages):
        if isinstance(msg, dict) and msg.get("role") == "assistant":
            content = msg.get("content") or []
            if not isinstance(content, list):
                continue
            texts = []
            for block in content:
                if isinstance(block, dict) and block.get("type") == "text":
                    text = block.get("text")
                    if isinstance(text, str) and text.strip():
                        texts.append(text)
            return "\n".join(texts).strip()
    return ""


async def main() -> int:
    task = _read_task()

    model = os.environ.get("OPUS_MODEL") or os.environ.get("MODEL") or "claude-opus-4-5-20251101"
    tool_version = os.environ.get("OPUS_TOOL_VERSION") or "computer_use_20251124"
    max_tokens = int(os.environ.get("OPUS_MAX_TOKENS") or "2048")
    only_n = os.environ.get("OPUS_ONLY_N_MOST_RECENT_IMAGES")
    only_n_images = int(only_n) if only_n else None

    api_key = os.environ.get("ANTHROPIC_API_KEY")
    if not api_key:
        raise RuntimeError("Missing ANTHROPIC_API_KEY inside container")

    messages = [
        {
            "role": "user",
            "content": [{"type": "text", "text": task}],
        }
    ]

    out_messages = await sampling_loop(
        model=model,
        provider=APIProvider.ANTHROPIC,
        system_prompt_suffix="",
        messages=messages,
        output_callback=lambda _block: None,
        tool_output_callback=lambda _result, _tool_use_id: None,
        api_response_callback=lambda _request, _response, _err: None,
        api_key=api_key,
        only_n_most_recent_images=only_n_images,
        max_tokens=max_tokens,
        tool_version=tool_version,
    )

    sys.stdout.write(_extract_final_text(out_messages))
    sys.stdout.flush()
    return 0


if __name__ == "__main__":
    raise SystemExit(asyncio.run(main()))
`
