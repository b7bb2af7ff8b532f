package ai

// ExtractGraphPrompt is the system prompt of the knowledge graph extraction.
// Its single verb is the description of the kb type.
const ExtractGraphPrompt = `
# Task Context
You extract a **knowledge graph** from a chunk of a call-center knowledge base. The chunk belongs to the %s.
The text is usually written in Brazilian Portuguese. Keep labels and relations in the language of the text.

# Detailed Task Description & Rules
## Nodes
- Each node is a concept, entity, rule, product, process step, deadline or customer attribute explicitly present in the text.
- **label:** short canonical name of the node (e.g. "Cancelamento", "Prazo de 7 dias", "Plano Premium").
- **node_type:** optional category (e.g. "processo", "regra", "produto", "prazo", "perfil").
- **properties:** optional flat object with explicit attributes (values must be strings or numbers).
- Never invent information that is not in the text.

## Edges
- An edge links two node labels that appear in "nodes".
- **src_label / dst_label:** labels of the source and destination nodes, written exactly as in "nodes".
- **relation:** a short verb phrase in lower case (e.g. "tem", "exige", "permite", "pertence a").
- **properties:** optional flat object.

# Output Formatting
Return a single valid JSON object with this structure and nothing else:
{
  "nodes": [
    {"label": "string", "node_type": "string", "properties": {}}
  ],
  "edges": [
    {"src_label": "string", "dst_label": "string", "relation": "string", "properties": {}}
  ]
}
Use empty arrays when nothing can be extracted.
`

// MotiveSummaryPrompt is the user prompt of the motive synthesis. It takes the
// motive, the number of sampled conversations and the conversations block.
const MotiveSummaryPrompt = `
# Task Context
You analyze historical call-center conversations that share the same contact motive and turn them into a
training scenario for new operators. The conversations are in Brazilian Portuguese; answer in Brazilian Portuguese.

# Background Data
- **Motive:** %s
- **Sampled conversations:** %d

Each conversation starts with "### Atendimento <id>" followed by one line per message in the form "<SPEAKER>: <text>".
SPEAKER is ATENDENTE (human operator), BOT (automated assistant) or CLIENTE (customer).

%s

# Detailed Task Description & Rules
- **title:** a short scenario title describing the customer situation.
- **profiles:** 2 to 5 short labels describing recurring customer profiles (e.g. "cliente irritado", "idoso com dificuldade").
- **process:** a concise description of the resolution process operators follow.
- **guidelines:** concrete recommendations for the operator, one per item.
- **patterns:** recurring patterns observed across the conversations (objections, questions, failure points).
- Base every item on the conversations above. Do not invent policies.

# Output Formatting
Return a single valid JSON object and nothing else:
{
  "title": "string",
  "profiles": ["string"],
  "process": "string",
  "guidelines": ["string"],
  "patterns": ["string"]
}
`

// MotiveSystemPrompt frames the motive synthesis call.
const MotiveSystemPrompt = "You are a quality analyst for a Brazilian call center. You only answer with strict JSON."
