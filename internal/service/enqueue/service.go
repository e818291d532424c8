package enqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/repository"
	"github.com/coldmailer/coldmailer/internal/template"
	"github.com/coldmailer/coldmailer/internal/util"
	"github.com/jmoiron/sqlx"
)

// queue rows are written in chunks to keep multi-row INSERTs bounded
const insertChunkSize = 100

var (
	ErrEmptyList      = errors.New("lead list has no sendable leads")
	ErrNoSuchCampaign = errors.New("campaign not found")
	ErrNoSuchSequence = errors.New("follow-up sequence not defined")
)

// Service atomically persists a campaign, its follow-up definitions, and
// the initial queue rows for every sendable lead of the target list.
// Bodies are rendered at enqueue time; the dispatch pass only rewrites
// links and sends.
type Service struct {
	db        *sqlx.DB
	campaigns repository.CampaignsRepository
	followups repository.FollowUpsRepository
	leads     repository.LeadsRepository
	queue     repository.QueueRepository
}

func New(
	db *sqlx.DB,
	campaignsRepo repository.CampaignsRepository,
	followUpsRepo repository.FollowUpsRepository,
	leadsRepo repository.LeadsRepository,
	queueRepo repository.QueueRepository,
) *Service {
	return &Service{
		db:        db,
		campaigns: campaignsRepo,
		followups: followUpsRepo,
		leads:     leadsRepo,
		queue:     queueRepo,
	}
}

// CreateCampaign writes the campaign, its follow-up chain, and one
// sequence-0 queue item per non-responded lead of the list, all in a
// single transaction. startAt is the initial schedule; the zero value
// means now.
//
// Returns the new campaign ID and the number of items queued.
func (s *Service) CreateCampaign(ctx context.Context, c model.Campaign, defs []model.FollowUpDefinition, startAt time.Time) (int64, int, error) {
	leads, err := s.sendableLeads(ctx, c.ListName)
	if err != nil {
		return 0, 0, err
	}

	if startAt.IsZero() || c.SendImmediately {
		startAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.campaigns.Insert(ctx, tx, c)
	if err != nil {
		return 0, 0, fmt.Errorf("insert campaign: %w", err)
	}

	for i := range defs {
		defs[i].CampaignID = id
	}
	if err := s.followups.InsertBatch(ctx, tx, defs); err != nil {
		return 0, 0, fmt.Errorf("insert follow-ups: %w", err)
	}

	items := buildItems(id, 0, c.Subject, c.Body, leads, startAt)
	if err := s.insertChunked(ctx, tx, items); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return id, len(items), nil
}

// QueueFollowUp manually enqueues one follow-up step for every
// non-responded lead of the campaign's list, scheduled immediately.
// Normally the chain advances on its own after each send; this exists
// for re-running a step for leads that joined the list late.
func (s *Service) QueueFollowUp(ctx context.Context, campaignID int64, sequence int) (int, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load campaign: %w", err)
	}
	if campaign == nil {
		return 0, ErrNoSuchCampaign
	}

	def, err := s.followups.Get(ctx, campaignID, sequence)
	if err != nil {
		return 0, fmt.Errorf("load follow-up: %w", err)
	}
	if def == nil {
		return 0, ErrNoSuchSequence
	}

	leads, err := s.sendableLeads(ctx, campaign.ListName)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	items := buildItems(campaignID, sequence, def.Subject, def.Body, leads, time.Now().UTC())
	if err := s.insertChunked(ctx, tx, items); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *Service) sendableLeads(ctx context.Context, listName string) ([]model.Lead, error) {
	all, err := s.leads.ListByList(ctx, listName)
	if err != nil {
		return nil, fmt.Errorf("load list %q: %w", listName, err)
	}

	sendable := all[:0]
	for _, l := range all {
		if !l.Responded {
			sendable = append(sendable, l)
		}
	}
	if len(sendable) == 0 {
		return nil, ErrEmptyList
	}
	return sendable, nil
}

func (s *Service) insertChunked(ctx context.Context, tx *sqlx.Tx, items []model.QueueItem) error {
	for start := 0; start < len(items); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := s.queue.InsertBatch(ctx, tx, items[start:end]); err != nil {
			return fmt.Errorf("insert queue chunk: %w", err)
		}
	}
	return nil
}

func buildItems(campaignID int64, sequence int, subject, body string, leads []model.Lead, at time.Time) []model.QueueItem {
	items := make([]model.QueueItem, 0, len(leads))
	for _, l := range leads {
		fields := l.TemplateFields()
		items = append(items, model.QueueItem{
			ID:           util.New(),
			CampaignID:   campaignID,
			LeadID:       l.ID,
			LeadEmail:    l.Email,
			Subject:      template.RenderSubject(subject, fields),
			Body:         template.Render(body, fields),
			Sequence:     sequence,
			ScheduledFor: at,
			Status:       model.StatusQueued,
		})
	}
	return items
}
