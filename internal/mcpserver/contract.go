package mcpserver

// OutlineFormatContract describes the index document format the semantic
// tree is built from. LLM consumers should follow it when creating or
// updating index documents.
const OutlineFormatContract = `# bonsai Outline Format Contract

Index documents describe the semantic tree. Every other document is placed
in the tree only by appearing in an index document's outline.

## Index documents

- A document is an index document when its filename starts with ` + "`" + `i.` + "`" + `
  (e.g. ` + "`" + `i.projects.md` + "`" + `) or its front matter sets ` + "`" + `nodetype: index` + "`" + `.
- The root index document is ` + "`" + `i.bonsai.md` + "`" + ` unless configured otherwise.
- An index document's body is an outline and nothing else.

## Outline

` + "```" + `markdown
- [[topic]]
  - [[subtopic]]
    - [[detail]]
- [[i.other-index]]
` + "```" + `

## Rules

1. **One entry per line.** Blank lines are ignored.
2. **Bullets are required.** Every entry starts with ` + "`" + `- ` + "`" + `, ` + "`" + `* ` + "`" + ` or ` + "`" + `+ ` + "`" + `.
3. **Entries are wikirefs.** The whole entry is ` + "`" + `[[filename]]` + "`" + `, the filename
   without the ` + "`" + `.md` + "`" + ` extension.
4. **Indentation is two spaces per level.** A line may be at most one level
   deeper than the line before it.
5. **Each document appears once** across all index documents. A second
   occurrence is reported and ignored.
6. **Including another index document** grafts its outline at that position.
   An index document must not include itself directly or through others.
7. **Unknown targets are allowed.** A wikiref to a document that does not
   exist yet becomes a zombie node until the document is created.

## References outside outlines

Regular documents connect through the web, not the tree:

- ` + "`" + `[[target]]` + "`" + ` or ` + "`" + `[[type::target]]` + "`" + ` is a link.
- ` + "`" + `![[target]]` + "`" + ` embeds the target's content.
- ` + "`" + `:key::[[target]]` + "`" + ` lines at the top of the body, or wikirefs in front
  matter fields, are typed attributes.
`
