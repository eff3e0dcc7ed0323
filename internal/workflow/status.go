// Package workflow implementa o ciclo de vida de uma solicitação de prova
// técnica: a máquina de estados, as regras de quem pode disparar cada
// transição e os efeitos colaterais de cada uma (consulta, notificação,
// auditoria, vínculo de documentos).
//
// Toda verificação de legalidade passa pela tabela de transições deste
// arquivo; nenhum outro ponto do sistema deriva regras a partir do texto
// do status.
package workflow

import "time"

// Status é o estado corrente de uma solicitação.
type Status string

const (
	StatusPendente                Status = "pendente"
	StatusEmAgendamento           Status = "em_agendamento"
	StatusEmAjuste                Status = "em_ajuste"
	StatusSolicitandoAjuste       Status = "solicitando_ajuste"
	StatusSolicitandoCancelamento Status = "solicitando_cancelamento"
	StatusConcluida               Status = "concluida"
)

// Role é o papel do usuário que age sobre a solicitação.
type Role string

const (
	RoleAdvogado     Role = "advogado"
	RoleMedico       Role = "medico_generalista"
	RoleEspecialista Role = "especialista"
)

// Action identifica uma transição disparável da máquina de estados.
type Action string

const (
	ActionCriar                 Action = "criar"
	ActionAceitarAgendar        Action = "aceitar_agendar"
	ActionExcluir               Action = "excluir"
	ActionSolicitarAjuste       Action = "solicitar_ajuste"
	ActionLiberarAjuste         Action = "liberar_ajuste"
	ActionReenviar              Action = "reenviar"
	ActionSolicitarCancelamento Action = "solicitar_cancelamento"
	ActionConfirmarCancelamento Action = "confirmar_cancelamento"
	ActionReverterCancelamento  Action = "reverter_cancelamento"
	ActionEntregarLaudo         Action = "entregar_laudo"
)

// Transition descreve uma aresta da máquina de estados.
// To vazio indica remoção do registro (estado terminal não persistido).
type Transition struct {
	Roles []Role
	From  []Status
	To    Status
	// Deleted marca transições que terminam com a exclusão da linha.
	Deleted bool
}

// transitions é a tabela única consultada por CanPerform e pelos serviços.
var transitions = map[Action]Transition{
	ActionAceitarAgendar: {
		Roles: []Role{RoleMedico},
		From:  []Status{StatusPendente},
		To:    StatusEmAgendamento,
	},
	ActionExcluir: {
		Roles:   []Role{RoleAdvogado},
		From:    []Status{StatusPendente},
		Deleted: true,
	},
	ActionSolicitarAjuste: {
		Roles: []Role{RoleAdvogado},
		From:  []Status{StatusEmAgendamento, StatusEmAjuste},
		To:    StatusSolicitandoAjuste,
	},
	ActionLiberarAjuste: {
		Roles: []Role{RoleMedico},
		From:  []Status{StatusSolicitandoAjuste},
		To:    StatusEmAjuste,
	},
	ActionReenviar: {
		Roles: []Role{RoleAdvogado},
		From:  []Status{StatusEmAjuste},
		To:    StatusPendente,
	},
	ActionSolicitarCancelamento: {
		Roles: []Role{RoleAdvogado, RoleMedico},
		From:  []Status{StatusEmAgendamento, StatusEmAjuste, StatusSolicitandoAjuste},
		To:    StatusSolicitandoCancelamento,
	},
	ActionConfirmarCancelamento: {
		Roles:   []Role{RoleAdvogado, RoleMedico},
		From:    []Status{StatusSolicitandoCancelamento},
		Deleted: true,
	},
	ActionReverterCancelamento: {
		Roles: []Role{RoleAdvogado, RoleMedico},
		From:  []Status{StatusSolicitandoCancelamento},
		// destino depende de haver consulta agendada; resolvido no serviço
	},
	ActionEntregarLaudo: {
		Roles: []Role{RoleMedico},
		From:  []Status{StatusEmAgendamento, StatusEmAjuste, StatusSolicitandoAjuste},
		To:    StatusConcluida,
	},
}

// CanPerform responde se o papel pode disparar a ação a partir do status.
// A criação não parte de nenhum status e é tratada à parte.
func CanPerform(role Role, action Action, from Status) bool {
	if action == ActionCriar {
		return role == RoleAdvogado
	}

	t, ok := transitions[action]
	if !ok {
		return false
	}

	roleOK := false
	for _, r := range t.Roles {
		if r == role {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return false
	}

	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// TransitionFor expõe a aresta da tabela para uso dos serviços.
func TransitionFor(action Action) (Transition, bool) {
	t, ok := transitions[action]
	return t, ok
}

// IsLocked deriva a trava de edição: a solicitação só aceita alteração de
// campos enquanto estiver em pendente, em_ajuste ou solicitando_cancelamento.
func IsLocked(s Status) bool {
	switch s {
	case StatusPendente, StatusEmAjuste, StatusSolicitandoCancelamento:
		return false
	}
	return true
}

// CanReassignMedico restringe a troca do médico designado aos estados em
// que a solicitação ainda não foi aceita ou foi reaberta para edição.
func CanReassignMedico(s Status) bool {
	return s == StatusPendente || s == StatusEmAjuste
}

// ValidStatus confere se o texto corresponde a um estado conhecido.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPendente, StatusEmAgendamento, StatusEmAjuste,
		StatusSolicitandoAjuste, StatusSolicitandoCancelamento, StatusConcluida:
		return true
	}
	return false
}

// TruncateToMinute normaliza datas para a granularidade usada na validação
// de prazos.
func TruncateToMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// DeadlineInPast indica se a data informada é estritamente anterior ao
// minuto corrente. Datas no minuto atual são aceitas.
func DeadlineInPast(candidate, now time.Time) bool {
	return TruncateToMinute(candidate).Before(TruncateToMinute(now))
}
