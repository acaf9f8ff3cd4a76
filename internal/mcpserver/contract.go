package mcpserver

// BangFormatContract describes how bangs are written and resolved, for LLM
// consumers that create bangs through the add_bang tool.
const BangFormatContract = `# bangd Bang Format Contract

A bang is a short trigger that sends a search straight to a site.
Typing ` + "`" + `!yt cats` + "`" + ` in a search engine opens YouTube's results for "cats".

## Fields

| Field | Rules |
|---|---|
| ` + "`" + `name` + "`" + ` | Human-readable name, 1-100 characters. |
| ` + "`" + `bang` + "`" + ` | Trigger, 1-25 characters, no whitespace. The bang symbol is stripped and it is stored lowercase. |
| ` + "`" + `url` + "`" + ` | Absolute URL (with scheme) of at most 250 characters containing exactly one ` + "`" + `{{{s}}}` + "`" + ` placeholder. |
| ` + "`" + `url_encode_query` + "`" + ` | When true the search terms are percent-encoded before substitution. Disable for sites that expect raw paths (e.g. the Wayback Machine). |
| ` + "`" + `base_url` + "`" + ` | Optional. Opened verbatim when the bang is used without search terms. |

## Resolution

1. The bang may lead or trail the query: ` + "`" + `!w go` + "`" + ` and ` + "`" + `go !w` + "`" + ` are equivalent. A leading bang wins.
2. A custom bang with the same trigger as a default bang replaces it. Aliases of the default keep working.
3. Deactivated default bangs are ignored.
4. With several targets the first replaces the current tab and the others open in background tabs.

## Example

` + "```" + `json
{"name": "YouTube", "bang": "yt", "url": "https://www.youtube.com/results?search_query={{{s}}}", "url_encode_query": true}
` + "```" + `
`
