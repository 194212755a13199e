package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/logging"
	"github.com/hochfrequenz/task-orchestrator/internal/notify"
	"github.com/hochfrequenz/task-orchestrator/internal/runctx"
	"github.com/hochfrequenz/task-orchestrator/internal/summary"
)

func (c *Controller) header() []summary.Record {
	return []summary.Record{
		{Level: logging.LevelInfo, Message: fmt.Sprintf("Task Name: %s", c.run.TaskName)},
		{Level: logging.LevelInfo, Message: fmt.Sprintf("Task Id: %s", c.run.TaskID)},
	}
}

// Summary returns the records of this run's typ stream, optionally preceded
// by the task name and id. It returns false if the run never logged.
func (c *Controller) Summary(typ domain.SummaryType, withHeader bool) ([]summary.Record, bool) {
	sink := c.fam.sinks.Lookup(typ, runctx.RunKey(c.run.TaskName, c.run.TaskID))
	if sink == nil {
		return nil, false
	}
	records := sink.Records()
	if withHeader {
		records = append(c.header(), records...)
	}
	return records, true
}

// FlatSummary renders Summary as text, one trimmed message per line. The
// header is separated from the records by an empty line.
func (c *Controller) FlatSummary(typ domain.SummaryType, withHeader bool) (string, bool) {
	sink := c.fam.sinks.Lookup(typ, runctx.RunKey(c.run.TaskName, c.run.TaskID))
	if sink == nil {
		return "", false
	}
	var records []summary.Record
	if withHeader {
		records = append(c.header(), summary.Record{})
	}
	records = append(records, sink.Records()...)
	return summary.Flat(records), true
}

// SetProhibitSummarySending suppresses (or allows) sending of typ summaries.
// Prohibiting the all type applies to every type without its own setting.
func (c *Controller) SetProhibitSummarySending(typ domain.SummaryType, prohibit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prohibit[typ] = prohibit
}

func (c *Controller) isProhibited(typ domain.SummaryType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.prohibit[typ]; ok {
		return v
	}
	return c.prohibit[domain.SummaryAll]
}

// AddSummaryFromTask appends the records of a finished sub-task's streams to
// the streams of the run that is current now
func (c *Controller) AddSummaryFromTask(child *Controller) {
	current := c.fam.registry.Current()
	if !current.Active() {
		return
	}
	key := current.RunKey()
	for _, typ := range domain.SummaryTypes {
		records, ok := child.Summary(typ, false)
		if !ok || len(records) == 0 {
			continue
		}
		c.fam.sinks.Append(typ, key, records...)
	}
}

// SendSummary mails the typ summary if the task's summary_<typ> section
// enables it and the stream has records. Missing sender or recipients are
// logged, not returned; a failed delivery is returned.
func (c *Controller) SendSummary(ctx context.Context, typ domain.SummaryType) error {
	cfg := c.runner.cfg
	name := c.run.TaskName
	section := "summary_" + string(typ)
	logger := c.fam.logger

	if !cfg.TaskBool(name, section, "send", false, false) {
		return nil
	}
	if records, ok := c.Summary(typ, false); !ok || len(records) == 0 {
		return nil
	}

	body, _ := c.FlatSummary(typ, true)
	senderName := cfg.TaskString(name, section, "sender", "general", false)
	subject := cfg.TaskString(name, section, "subject", "", false)
	recipients := cfg.TaskString(name, section, "recipients", "", false)
	copyRecipients := cfg.TaskString(name, section, "copy_recipients", "", false)
	blindCopyRecipients := cfg.TaskString(name, section, "blind_copy_recipients", "", false)

	if subject == "" {
		subject = fmt.Sprintf("Task: %s | Summary: %s", name, typ)
	}
	if title := cfg.DefaultTitle(); title != "" {
		subject = title + " - " + subject
	}

	sender, ok := cfg.SenderIdentity(senderName)
	if !ok {
		logger.Error(fmt.Sprintf("Could not send summary of type: %s because no sender was configured", typ))
		return nil
	}

	if c.isProhibited(typ) {
		logger.Debug(fmt.Sprintf("Suppress sending summary of type: %s with subject: %s to recipients: %s", typ, subject, recipients))
		return nil
	}

	to := domain.ParseAddressList(recipients)
	if len(to) == 0 {
		logger.Error(fmt.Sprintf("Could not send summary of type: %s because no recipients were configured", typ))
		return nil
	}
	cc := domain.ParseAddressList(copyRecipients)
	bcc := domain.ParseAddressList(blindCopyRecipients)

	msg := fmt.Sprintf("Sending summary of type: %s with subject: %s to recipients: %s", typ, subject, strings.Join(to, ", "))
	if len(cc) > 0 {
		msg += ", copy to: " + strings.Join(cc, ", ")
	}
	if len(bcc) > 0 {
		msg += ", blind copy to: " + strings.Join(bcc, ", ")
	}
	logger.Debug(msg)

	return c.runner.notifier.Send(ctx, notify.Notification{
		Title:   subject,
		Message: body,
		Type:    notificationType(typ),

		TaskName:  c.run.TaskName,
		TaskID:    c.run.TaskID,
		StoreCode: c.run.StoreCode,
		Summary:   string(typ),

		From: notify.Address{Email: sender.Email, Name: sender.Name},
		To:   to,
		Cc:   cc,
		Bcc:  bcc,
	})
}

func notificationType(typ domain.SummaryType) notify.NotificationType {
	switch typ {
	case domain.SummarySuccess:
		return notify.NotifySuccess
	case domain.SummaryError:
		return notify.NotifyError
	default:
		return notify.NotifyInfo
	}
}
