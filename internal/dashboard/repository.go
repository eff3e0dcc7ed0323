package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 3 * time.Second

// AdvogadoStats resume a carteira do advogado.
type AdvogadoStats struct {
	TotalCasos            int `json:"total_casos"`
	CasosAbertos          int `json:"casos_abertos"`
	CasosUrgentes         int `json:"casos_urgentes"`
	SolicitacoesAtivas    int `json:"solicitacoes_ativas"`
	SolicitacoesPendentes int `json:"solicitacoes_pendentes"`
	LaudosEntregues       int `json:"laudos_entregues"`
}

// SeriesPoint é um ponto da série diária de solicitações.
type SeriesPoint struct {
	Day   string `json:"day"`
	Total int    `json:"total"`
}

// MedicoStats resume a fila e a agenda do médico.
type MedicoStats struct {
	SolicitacoesPendentes int           `json:"solicitacoes_pendentes"`
	EmAndamento           int           `json:"em_andamento"`
	ConsultasFuturas      int           `json:"consultas_futuras"`
	LaudosEntregues       int           `json:"laudos_entregues"`
	UltimosSeteDias       []SeriesPoint `json:"ultimos_sete_dias"`
}

// EspecialistaStats resume os pareceres do especialista.
type EspecialistaStats struct {
	Designacoes         int `json:"designacoes"`
	PareceresRascunho   int `json:"pareceres_rascunho"`
	PareceresConcluidos int `json:"pareceres_concluidos"`
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (repo *Repository) AdvogadoStats(ctx context.Context, userID uuid.UUID) (AdvogadoStats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var s AdvogadoStats
	err := repo.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM cases WHERE user_id = $1),
			(SELECT count(*) FROM cases WHERE user_id = $1 AND status IN ('aberto', 'em_andamento', 'aguardando_laudo')),
			(SELECT count(*) FROM cases WHERE user_id = $1 AND priority = 'urgente' AND status NOT IN ('concluido', 'arquivado')),
			(SELECT count(*) FROM case_requests WHERE advogado_id = $1 AND status <> 'concluida'),
			(SELECT count(*) FROM case_requests WHERE advogado_id = $1 AND status = 'pendente'),
			(SELECT count(*) FROM reports p JOIN case_requests r ON r.id = p.case_request_id
			 WHERE r.advogado_id = $1 AND p.type = 'laudo' AND p.status = 'concluido')
	`, userID).Scan(&s.TotalCasos, &s.CasosAbertos, &s.CasosUrgentes, &s.SolicitacoesAtivas, &s.SolicitacoesPendentes, &s.LaudosEntregues)
	return s, err
}

func (repo *Repository) MedicoStats(ctx context.Context, userID uuid.UUID) (MedicoStats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var s MedicoStats
	err := repo.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM case_requests WHERE medico_id = $1 AND status = 'pendente'),
			(SELECT count(*) FROM case_requests WHERE medico_id = $1 AND status NOT IN ('pendente', 'concluida')),
			(SELECT count(*) FROM consultations WHERE medico_id = $1 AND status = 'agendada' AND scheduled_at >= now()),
			(SELECT count(*) FROM reports WHERE author_id = $1 AND type = 'laudo' AND status = 'concluido')
	`, userID).Scan(&s.SolicitacoesPendentes, &s.EmAndamento, &s.ConsultasFuturas, &s.LaudosEntregues)
	if err != nil {
		return s, err
	}

	rows, err := repo.db.Query(ctx, `
		SELECT to_char(created_at::date, 'YYYY-MM-DD'), count(*)
		FROM case_requests
		WHERE medico_id = $1 AND created_at >= now() - interval '7 days'
		GROUP BY created_at::date
		ORDER BY created_at::date
	`, userID)
	if err != nil {
		return s, err
	}
	defer rows.Close()

	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.Day, &p.Total); err != nil {
			return s, err
		}
		s.UltimosSeteDias = append(s.UltimosSeteDias, p)
	}
	return s, rows.Err()
}

func (repo *Repository) EspecialistaStats(ctx context.Context, userID uuid.UUID) (EspecialistaStats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var s EspecialistaStats
	err := repo.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM case_requests WHERE especialista_id = $1 AND status <> 'concluida'),
			(SELECT count(*) FROM reports WHERE author_id = $1 AND type = 'pre_laudo' AND status = 'rascunho'),
			(SELECT count(*) FROM reports WHERE author_id = $1 AND type = 'pre_laudo' AND status = 'concluido')
	`, userID).Scan(&s.Designacoes, &s.PareceresRascunho, &s.PareceresConcluidos)
	return s, err
}
