package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/provamed/api/internal/storage"
)

var (
	// ErrForbidden sinaliza que o ator não participa da solicitação ou o
	// papel dele não autoriza a ação.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation embrulha falhas de entrada; a mensagem vai no Details.
	ErrValidation = errors.New("validação")
)

// CategoryIdentificacao e as demais são as categorias de anexo aceitas na
// abertura de uma solicitação. As duas primeiras são obrigatórias.
const (
	CategoryIdentificacao         = "identificacao"
	CategoryComprovanteResidencia = "comprovante_residencia"
	CategoryLaudosAnteriores      = "laudos_anteriores"
	CategoryExames                = "exames"
	CategoryReceitas              = "receitas"
)

var mandatoryCategories = []string{CategoryIdentificacao, CategoryComprovanteResidencia}

var validCategories = map[string]bool{
	CategoryIdentificacao:         true,
	CategoryComprovanteResidencia: true,
	CategoryLaudosAnteriores:      true,
	CategoryExames:                true,
	CategoryReceitas:              true,
}

// Actor identifica quem executa a operação. O papel vem do token, nunca do
// payload.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type repository interface {
	GetRequest(ctx context.Context, id uuid.UUID) (Request, error)
	ListByActor(ctx context.Context, actor Actor) ([]Request, error)
	GetCaseOwner(ctx context.Context, caseID uuid.UUID) (uuid.UUID, string, error)
	GetUserRole(ctx context.Context, userID uuid.UUID) (Role, error)
	CaseHasActiveRequest(ctx context.Context, caseID uuid.UUID) (bool, error)
	InsertRequest(ctx context.Context, r Request) (uuid.UUID, error)
	InsertDocument(ctx context.Context, d DocumentRow) error
	AcceptAndSchedule(ctx context.Context, requestID, medicoID uuid.UUID, patientName string, scheduledAt, forecast time.Time, notes *string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	ProposeCancellation(ctx context.Context, id uuid.UUID, from []Status, initiator uuid.UUID) error
	ConfirmCancellation(ctx context.Context, id uuid.UUID) error
	RevertCancellation(ctx context.Context, id uuid.UUID, to Status) error
	Resubmit(ctx context.Context, id uuid.UUID, upd RequestUpdate) error
	UpdateFields(ctx context.Context, id uuid.UUID, upd RequestUpdate, expected Status) error
	Delete(ctx context.Context, id uuid.UUID) error
	SetEspecialista(ctx context.Context, id uuid.UUID, especialistaID *uuid.UUID, expected Status) error
	HasConsultation(ctx context.Context, requestID uuid.UUID) (bool, error)
	DeliverReport(ctx context.Context, requestID uuid.UUID, from []Status, authorID uuid.UUID, title, reportType, filePath string) (uuid.UUID, error)
}

type notifier interface {
	Send(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) error
}

type auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, details map[string]any) error
}

// Service aplica as regras do fluxo de solicitações. Toda transição passa
// pela tabela de transições; o repositório confirma o estado esperado na
// escrita, então corridas entre atores terminam em ErrConflict, nunca em
// estado inválido.
type Service struct {
	repo    repository
	docs    storage.Client
	reports storage.Client
	notif   notifier
	audit   auditor
	now     func() time.Time
}

func NewService(repo repository, docs, reports storage.Client, notif notifier, rec auditor) *Service {
	return &Service{repo: repo, docs: docs, reports: reports, notif: notif, audit: rec, now: time.Now}
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// FileUpload é um anexo recebido no multipart da criação.
type FileUpload struct {
	Category    string
	FileName    string
	ContentType string
	Content     []byte
}

// UploadFailure descreve um anexo que não subiu. A solicitação é criada
// mesmo assim; o chamador decide se reenvia.
type UploadFailure struct {
	Category string `json:"category"`
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// CreateRequestInput reúne os dados da abertura de solicitação.
type CreateRequestInput struct {
	CaseID      uuid.UUID
	MedicoID    uuid.UUID
	Type        string
	Description *string
	Deadline    *time.Time
	Files       []FileUpload
}

// CreateRequestResult devolve a solicitação criada e as falhas de upload.
type CreateRequestResult struct {
	Request       Request         `json:"request"`
	FailedUploads []UploadFailure `json:"failed_uploads,omitempty"`
}

// ListRequests devolve as solicitações em que o ator participa.
func (s *Service) ListRequests(ctx context.Context, actor Actor) ([]Request, error) {
	return s.repo.ListByActor(ctx, actor)
}

// GetRequest devolve a solicitação se o ator for parte dela.
func (s *Service) GetRequest(ctx context.Context, actor Actor, id uuid.UUID) (Request, error) {
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !isParty(req, actor) {
		return Request{}, ErrForbidden
	}
	return req, nil
}

func isParty(req Request, actor Actor) bool {
	switch actor.Role {
	case RoleAdvogado:
		return req.AdvogadoID == actor.ID
	case RoleMedico:
		return req.MedicoID != nil && *req.MedicoID == actor.ID
	case RoleEspecialista:
		return req.EspecialistaID != nil && *req.EspecialistaID == actor.ID
	}
	return false
}

// CreateRequest abre uma solicitação pendente. A criação e os anexos são
// independentes: cada upload que falhar entra em FailedUploads sem desfazer
// a solicitação.
func (s *Service) CreateRequest(ctx context.Context, actor Actor, input CreateRequestInput) (CreateRequestResult, error) {
	if !CanPerform(actor.Role, ActionCriar, "") {
		return CreateRequestResult{}, ErrForbidden
	}
	if input.Type == "" {
		return CreateRequestResult{}, validationErr("tipo da prova é obrigatório")
	}
	if input.MedicoID == uuid.Nil {
		return CreateRequestResult{}, validationErr("médico é obrigatório")
	}
	if input.Deadline != nil {
		d := TruncateToMinute(*input.Deadline)
		if DeadlineInPast(d, s.now()) {
			return CreateRequestResult{}, validationErr("prazo não pode estar no passado")
		}
		input.Deadline = &d
	}
	if err := checkCategories(input.Files); err != nil {
		return CreateRequestResult{}, err
	}

	owner, _, err := s.repo.GetCaseOwner(ctx, input.CaseID)
	if err != nil {
		return CreateRequestResult{}, err
	}
	if owner != actor.ID {
		return CreateRequestResult{}, ErrForbidden
	}

	role, err := s.repo.GetUserRole(ctx, input.MedicoID)
	if err != nil {
		return CreateRequestResult{}, validationErr("médico não encontrado")
	}
	if role != RoleMedico {
		return CreateRequestResult{}, validationErr("usuário indicado não é médico generalista")
	}

	active, err := s.repo.CaseHasActiveRequest(ctx, input.CaseID)
	if err != nil {
		return CreateRequestResult{}, err
	}
	if active {
		return CreateRequestResult{}, validationErr("o caso já possui uma solicitação ativa")
	}

	medicoID := input.MedicoID
	id, err := s.repo.InsertRequest(ctx, Request{
		CaseID:      input.CaseID,
		AdvogadoID:  actor.ID,
		MedicoID:    &medicoID,
		Type:        input.Type,
		Description: input.Description,
		Deadline:    input.Deadline,
	})
	if err != nil {
		return CreateRequestResult{}, err
	}

	failures := s.uploadDocuments(ctx, actor, input.CaseID, input.Files)

	s.recordAudit(ctx, actor, "request_created", id, map[string]any{"case_id": input.CaseID, "type": input.Type})
	s.notify(ctx, input.MedicoID, "Nova solicitação de prova técnica",
		"Você recebeu uma nova solicitação de prova técnica.", "case_request", requestLink(id))

	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return CreateRequestResult{}, err
	}
	return CreateRequestResult{Request: req, FailedUploads: failures}, nil
}

func checkCategories(files []FileUpload) error {
	seen := map[string]bool{}
	for _, f := range files {
		if !validCategories[f.Category] {
			return validationErr("categoria de anexo desconhecida: " + f.Category)
		}
		seen[f.Category] = true
	}
	for _, cat := range mandatoryCategories {
		if !seen[cat] {
			return validationErr("anexo obrigatório ausente: " + cat)
		}
	}
	return nil
}

func (s *Service) uploadDocuments(ctx context.Context, actor Actor, caseID uuid.UUID, files []FileUpload) []UploadFailure {
	var failures []UploadFailure
	for _, f := range files {
		key := fmt.Sprintf("%s/%s_%d_%s", caseID, f.Category, s.now().UnixMilli(), f.FileName)
		_, err := s.docs.Upload(ctx, storage.UploadInput{
			Key:         key,
			Body:        f.Content,
			ContentType: f.ContentType,
		})
		if err == nil {
			err = s.repo.InsertDocument(ctx, DocumentRow{
				CaseID:      caseID,
				FileName:    f.FileName,
				FilePath:    key,
				FileSize:    int64(len(f.Content)),
				FileType:    f.ContentType,
				Description: f.Category,
				UploadedBy:  actor.ID,
			})
		}
		if err != nil {
			log.Warn().Err(err).Str("case_id", caseID.String()).Str("category", f.Category).Msg("workflow upload falhou")
			failures = append(failures, UploadFailure{Category: f.Category, FileName: f.FileName, Reason: err.Error()})
		}
	}
	return failures
}

// AcceptInput carrega o agendamento feito pelo médico na aceitação.
type AcceptInput struct {
	ScheduledAt        time.Time
	ReportForecastDate time.Time
	Notes              *string
}

// AcceptAndSchedule move a solicitação de pendente para em_agendamento,
// criando a consulta na mesma transação.
func (s *Service) AcceptAndSchedule(ctx context.Context, actor Actor, id uuid.UUID, input AcceptInput) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionAceitarAgendar, req.Status) {
		return ErrForbidden
	}
	if input.ScheduledAt.IsZero() || input.ReportForecastDate.IsZero() {
		return validationErr("agendamento e previsão de laudo são obrigatórios")
	}
	scheduled := TruncateToMinute(input.ScheduledAt)
	if DeadlineInPast(scheduled, s.now()) {
		return validationErr("agendamento não pode estar no passado")
	}
	forecast := TruncateToMinute(input.ReportForecastDate)
	if DeadlineInPast(forecast, s.now()) {
		return validationErr("previsão de laudo não pode estar no passado")
	}

	_, patient, err := s.repo.GetCaseOwner(ctx, req.CaseID)
	if err != nil {
		return err
	}

	if err := s.repo.AcceptAndSchedule(ctx, id, actor.ID, patient, scheduled, forecast, input.Notes); err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "request_accepted", id, map[string]any{"scheduled_at": scheduled})
	s.notify(ctx, req.AdvogadoID, "Solicitação aceita",
		"O médico aceitou a solicitação e agendou a consulta.", "case_request", requestLink(id))
	return nil
}

// DeleteRequest remove uma solicitação ainda pendente.
func (s *Service) DeleteRequest(ctx context.Context, actor Actor, id uuid.UUID) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionExcluir, req.Status) {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "request_deleted", id, nil)
	return nil
}

// RequestAdjustment pede ao médico que destrave a solicitação para edição.
func (s *Service) RequestAdjustment(ctx context.Context, actor Actor, id uuid.UUID, message string) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionSolicitarAjuste, req.Status) {
		return ErrForbidden
	}
	if message == "" {
		return validationErr("descreva o ajuste desejado")
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status, StatusSolicitandoAjuste); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "adjustment_requested", id, map[string]any{"message": message})
	if req.MedicoID != nil {
		s.notify(ctx, *req.MedicoID, "Ajuste solicitado",
			"O advogado pediu ajuste na solicitação: "+message, "case_request", requestLink(id))
	}
	return nil
}

// AllowEdit destrava a solicitação para o advogado editar.
func (s *Service) AllowEdit(ctx context.Context, actor Actor, id uuid.UUID) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionLiberarAjuste, req.Status) {
		return ErrForbidden
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status, StatusEmAjuste); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "edit_allowed", id, nil)
	s.notify(ctx, req.AdvogadoID, "Edição liberada",
		"O médico liberou a solicitação para ajuste.", "case_request", requestLink(id))
	return nil
}

// UpdateInput carrega os campos editáveis pelo advogado.
type UpdateInput struct {
	MedicoID    uuid.UUID
	Type        string
	Description *string
	Deadline    *time.Time
}

func (s *Service) validateUpdate(ctx context.Context, req Request, input *UpdateInput) error {
	if input.Type == "" {
		return validationErr("tipo da prova é obrigatório")
	}
	if input.MedicoID == uuid.Nil {
		return validationErr("médico é obrigatório")
	}
	if input.Deadline != nil {
		d := TruncateToMinute(*input.Deadline)
		if DeadlineInPast(d, s.now()) {
			return validationErr("prazo não pode estar no passado")
		}
		input.Deadline = &d
	}
	if req.MedicoID != nil && *req.MedicoID != input.MedicoID {
		if !CanReassignMedico(req.Status) {
			return validationErr("o médico não pode ser trocado neste estado")
		}
		role, err := s.repo.GetUserRole(ctx, input.MedicoID)
		if err != nil {
			return validationErr("médico não encontrado")
		}
		if role != RoleMedico {
			return validationErr("usuário indicado não é médico generalista")
		}
	}
	return nil
}

// ResubmitRequest devolve a solicitação editada ao médico (em_ajuste → pendente).
func (s *Service) ResubmitRequest(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionReenviar, req.Status) {
		return ErrForbidden
	}
	if err := s.validateUpdate(ctx, req, &input); err != nil {
		return err
	}
	medicoID := input.MedicoID
	if err := s.repo.Resubmit(ctx, id, RequestUpdate{
		MedicoID:    &medicoID,
		Type:        input.Type,
		Description: input.Description,
		Deadline:    input.Deadline,
	}); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "request_resubmitted", id, nil)
	s.notify(ctx, input.MedicoID, "Solicitação reenviada",
		"O advogado reenviou a solicitação ajustada.", "case_request", requestLink(id))
	return nil
}

// UpdateRequest edita campos de uma solicitação destravada sem mudar o status.
func (s *Service) UpdateRequest(ctx context.Context, actor Actor, id uuid.UUID, input UpdateInput) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if actor.Role != RoleAdvogado {
		return ErrForbidden
	}
	if IsLocked(req.Status) {
		return validationErr("a solicitação está travada para edição")
	}
	if err := s.validateUpdate(ctx, req, &input); err != nil {
		return err
	}
	medicoID := input.MedicoID
	return s.repo.UpdateFields(ctx, id, RequestUpdate{
		MedicoID:    &medicoID,
		Type:        input.Type,
		Description: input.Description,
		Deadline:    input.Deadline,
	}, req.Status)
}

// ProposeCancellation inicia o cancelamento bilateral.
func (s *Service) ProposeCancellation(ctx context.Context, actor Actor, id uuid.UUID, reason string) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionSolicitarCancelamento, req.Status) {
		return ErrForbidden
	}
	tr, _ := TransitionFor(ActionSolicitarCancelamento)
	if err := s.repo.ProposeCancellation(ctx, id, tr.From, actor.ID); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "cancellation_proposed", id, map[string]any{"reason": reason})
	if other := counterpart(req, actor); other != uuid.Nil {
		msg := "A outra parte propôs cancelar a solicitação."
		if reason != "" {
			msg += " Motivo: " + reason
		}
		s.notify(ctx, other, "Cancelamento proposto", msg, "case_request", requestLink(id))
	}
	return nil
}

// ConfirmCancellation efetiva o cancelamento. Só a contraparte pode
// confirmar: quem propôs não fecha o acordo sozinho.
func (s *Service) ConfirmCancellation(ctx context.Context, actor Actor, id uuid.UUID) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionConfirmarCancelamento, req.Status) {
		return ErrForbidden
	}
	if req.CancelRequestedBy != nil && *req.CancelRequestedBy == actor.ID {
		return ErrForbidden
	}
	if err := s.repo.ConfirmCancellation(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "cancellation_confirmed", id, nil)
	if other := counterpart(req, actor); other != uuid.Nil {
		s.notify(ctx, other, "Solicitação cancelada",
			"O cancelamento foi confirmado e a solicitação removida.", "case_request", nil)
	}
	return nil
}

// RevertCancellation retira a proposta de cancelamento. O destino depende de
// a consulta já existir: com consulta volta a em_agendamento, sem ela a
// solicitação ainda não foi aceita e volta a pendente.
func (s *Service) RevertCancellation(ctx context.Context, actor Actor, id uuid.UUID) error {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanPerform(actor.Role, ActionReverterCancelamento, req.Status) {
		return ErrForbidden
	}

	target := StatusPendente
	has, err := s.repo.HasConsultation(ctx, id)
	if err != nil {
		return err
	}
	if has {
		target = StatusEmAgendamento
	}

	if err := s.repo.RevertCancellation(ctx, id, target); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "cancellation_reverted", id, map[string]any{"restored_to": target})
	if other := counterpart(req, actor); other != uuid.Nil {
		s.notify(ctx, other, "Cancelamento revertido",
			"A proposta de cancelamento foi retirada.", "case_request", requestLink(id))
	}
	return nil
}

// DeliverInput carrega o laudo final enviado pelo médico.
type DeliverInput struct {
	Title       string
	Type        string
	FileName    string
	ContentType string
	Content     []byte
}

// DeliverReport sobe o laudo e conclui solicitação e caso atomicamente. O
// upload acontece antes da transação: se a escrita falhar, o blob órfão fica
// no bucket, nunca o contrário.
func (s *Service) DeliverReport(ctx context.Context, actor Actor, id uuid.UUID, input DeliverInput) (uuid.UUID, error) {
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return uuid.Nil, err
	}
	if !CanPerform(actor.Role, ActionEntregarLaudo, req.Status) {
		return uuid.Nil, ErrForbidden
	}
	if input.Title == "" {
		return uuid.Nil, validationErr("título do laudo é obrigatório")
	}
	if len(input.Content) == 0 {
		return uuid.Nil, validationErr("arquivo do laudo é obrigatório")
	}
	if input.Type == "" {
		input.Type = "laudo"
	}

	key := fmt.Sprintf("%s/%d_%s", id, s.now().UnixMilli(), input.FileName)
	if _, err := s.reports.Upload(ctx, storage.UploadInput{
		Key:         key,
		Body:        input.Content,
		ContentType: input.ContentType,
	}); err != nil {
		return uuid.Nil, fmt.Errorf("upload do laudo: %w", err)
	}

	tr, _ := TransitionFor(ActionEntregarLaudo)
	reportID, err := s.repo.DeliverReport(ctx, id, tr.From, actor.ID, input.Title, input.Type, key)
	if err != nil {
		return uuid.Nil, err
	}

	s.recordAudit(ctx, actor, "report_delivered", id, map[string]any{"report_id": reportID})
	s.notify(ctx, req.AdvogadoID, "Laudo disponível",
		"O laudo da solicitação foi entregue.", "report", requestLink(id))
	return reportID, nil
}

// AssignEspecialista vincula (ou remove, com nil) o especialista que dará o
// parecer preliminar. Só o médico designado, e nunca depois da conclusão.
func (s *Service) AssignEspecialista(ctx context.Context, actor Actor, id uuid.UUID, especialistaID *uuid.UUID) error {
	if actor.Role != RoleMedico {
		return ErrForbidden
	}
	req, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if req.Status == StatusConcluida {
		return validationErr("solicitação concluída não aceita designação")
	}

	if especialistaID != nil {
		role, err := s.repo.GetUserRole(ctx, *especialistaID)
		if err != nil {
			return validationErr("especialista não encontrado")
		}
		if role != RoleEspecialista {
			return validationErr("usuário indicado não é especialista")
		}
	}

	if err := s.repo.SetEspecialista(ctx, id, especialistaID, req.Status); err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "especialista_assigned", id, nil)
	if especialistaID != nil {
		s.notify(ctx, *especialistaID, "Designação de parecer",
			"Você foi designado para emitir parecer numa solicitação.", "case_request", requestLink(id))
	}
	return nil
}

func counterpart(req Request, actor Actor) uuid.UUID {
	if actor.Role == RoleAdvogado {
		if req.MedicoID != nil {
			return *req.MedicoID
		}
		return uuid.Nil
	}
	return req.AdvogadoID
}

func requestLink(id uuid.UUID) *string {
	link := "/solicitacoes/" + id.String()
	return &link
}

// notify e recordAudit rodam depois do commit: falha aqui é logada, não
// desfaz a operação.
func (s *Service) notify(ctx context.Context, userID uuid.UUID, title, message, typ string, link *string) {
	if s.notif == nil {
		return
	}
	if err := s.notif.Send(ctx, userID, title, message, typ, link); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("workflow notificação falhou")
	}
}

func (s *Service) recordAudit(ctx context.Context, actor Actor, action string, requestID uuid.UUID, details map[string]any) {
	if s.audit == nil {
		return
	}
	rid := requestID
	if err := s.audit.Record(ctx, actor.ID, action, "case_request", &rid, details); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("workflow auditoria falhou")
	}
}
