package summarize

const extractivePrompt = `Extract the %d most important sentences from the following text.
Return ONLY the sentences, numbered 1-%d, exactly as they appear in the text.

Text:
%s

Important sentences:
`

const abstractivePrompt = `Create a concise summary of the following text in under %d words.
Focus on: %s information
Preserve important numbers, dates, names, and factual details.

Text:
%s

Summary:
`

const bulletsPrompt = `Summarize the following text in exactly %d concise bullet points.
Each bullet should be a complete sentence capturing a key insight.

Text:
%s

Bullet points:
`

const treePrompt = `Context information from multiple sources is below.
---------------------
%s
---------------------
Given the information from multiple sources and not prior knowledge, answer the query.
Query: %s
Answer:
`
