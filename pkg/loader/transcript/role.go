package transcript

import "github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/common"

var roleSynonyms = map[string]common.Role{
	"operator":   common.RoleOperator,
	"operador":   common.RoleOperator,
	"operadora":  common.RoleOperator,
	"atendente":  common.RoleOperator,
	"agente":     common.RoleOperator,
	"agent":      common.RoleOperator,
	"humano":     common.RoleOperator,
	"analista":   common.RoleOperator,
	"consultor":  common.RoleOperator,
	"consultora": common.RoleOperator,

	"bot":                common.RoleBot,
	"chatbot":            common.RoleBot,
	"robo":               common.RoleBot,
	"ura":                common.RoleBot,
	"virtual":            common.RoleBot,
	"assistente_virtual": common.RoleBot,
	"sistema":            common.RoleBot,
	"system":             common.RoleBot,
	"ia":                 common.RoleBot,

	"customer":   common.RoleCustomer,
	"cliente":    common.RoleCustomer,
	"client":     common.RoleCustomer,
	"usuario":    common.RoleCustomer,
	"user":       common.RoleCustomer,
	"consumidor": common.RoleCustomer,
}

// NormalizeRole maps a raw speaker value to a Role, nil when unknown.
func NormalizeRole(raw string) *common.Role {
	role, ok := roleSynonyms[normalizeKey(raw)]
	if !ok {
		return nil
	}
	return &role
}

// DisplayLabel is the speaker label used when conversations are rendered
// into prompts.
func DisplayLabel(role *common.Role) string {
	if role == nil {
		return "CLIENTE"
	}
	switch *role {
	case common.RoleOperator:
		return "ATENDENTE"
	case common.RoleBot:
		return "BOT"
	}
	return "CLIENTE"
}
