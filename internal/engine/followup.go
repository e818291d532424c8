package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/coldmailer/coldmailer/internal/template"
	"github.com/coldmailer/coldmailer/internal/util"
)

// scheduleFollowUp enqueues the next item of the drip chain after a
// successful send. A missing definition for the next sequence means the
// chain simply ends. The new item inherits lead and campaign; sender
// continuity comes from the sticky assignment, not from the row.
func (e *Engine) scheduleFollowUp(ctx context.Context, sent model.QueueItem, sentAt time.Time) (bool, error) {
	next := sent.Sequence + 1

	def, err := e.FollowUps.Get(ctx, sent.CampaignID, next)
	if err != nil {
		return false, fmt.Errorf("lookup follow-up %d/%d: %w", sent.CampaignID, next, err)
	}
	if def == nil {
		return false, nil
	}

	lead, err := e.Leads.GetByID(ctx, sent.LeadID)
	if err != nil {
		return false, fmt.Errorf("load lead %d: %w", sent.LeadID, err)
	}
	if lead == nil || lead.Responded {
		// a replied lead must never be re-enqueued
		return false, nil
	}

	fields := lead.TemplateFields()
	item := model.QueueItem{
		ID:           util.New(),
		CampaignID:   sent.CampaignID,
		LeadID:       sent.LeadID,
		LeadEmail:    lead.Email,
		Subject:      template.RenderSubject(def.Subject, fields),
		Body:         template.Render(def.Body, fields),
		Sequence:     next,
		ScheduledFor: sentAt.Add(time.Duration(def.DaysAfterPrevious) * 24 * time.Hour),
		Status:       model.StatusQueued,
	}

	if err := e.Queue.Insert(ctx, nil, item); err != nil {
		return false, fmt.Errorf("enqueue follow-up: %w", err)
	}
	return true, nil
}
