package analysis

const sentimentPrompt = `Analyze the sentiment of the following text.
Provide:
1. Overall sentiment (positive/negative/neutral/mixed)
2. Confidence score (0-100)
3. Brief reasoning (one sentence)

Format:
Sentiment: [positive/negative/neutral/mixed]
Confidence: [0-100]
Reasoning: [explanation]

Text:
%s

Analysis:
`

const entitiesPrompt = `Extract all important entities from the text below.
Categorize them as:
- People: Names of individuals
- Organizations: Companies, institutions
- Locations: Cities, countries, places
- Dates: Specific dates or time periods
- Numbers: Important financial figures, statistics

Format:
People: name1, name2, name3
Organizations: org1, org2
Locations: loc1, loc2
Dates: date1, date2
Numbers: num1 (context), num2 (context)

Text:
%s

Entities:
`

const themesPrompt = `Analyze the following text and identify the %d most important themes.
For each theme, provide:
1. Theme name (2-4 words)
2. Brief description (one sentence)

Format your response as:
Theme 1: [Name]
Description: [Description]

Text:
%s

Themes:
`

const structurePrompt = `Analyze the structure and type of this document.

Format:
Document Type: [report, article, essay, financial document, ...]
Writing Style: [formal/informal/technical/narrative]
Sections:
- [major section]
- [major section]

List 3-5 major sections.

Text sample:
%s

Analysis:
`

const keywordsPrompt = `You are a keyword extraction assistant.

Extract the most important keyword phrases from the text below.
Return ONLY a comma-separated list of keywords (5-10 keywords).
Do NOT include explanations, markdown, bullets, or extra text.

Text:
%s

Keywords:
`
