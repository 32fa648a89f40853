package label

const systemPrompt = `You name conversations. Given the opening of a conversation between a patient and a clinical assistant, reply with a short title of 3 to 5 words that describes what the conversation is about.

Rules:
- Reply with the title only: no quotes, no trailing punctuation, no preamble
- Use title case
- Do not include names, dates of birth or other identifying details
- If the topic is unclear, describe the first question the user asked`

const labelUserPrompt = `Conversation opening:
---
%s
---

Title (3-5 words):`
