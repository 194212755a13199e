package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Slack rejects section texts longer than this
const slackSectionLimit = 3000

// SlackNotifier mirrors run summaries to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a SlackNotifier. An empty URL disables it.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) slackText {
	return slackText{Type: "mrkdwn", Text: s}
}

func slackColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

// buildSlackPayload lays out a summary as one colored attachment: the run's
// identity as fields, then the summary body as a code block.
func buildSlackPayload(n Notification) slackPayload {
	var fields []slackText
	for _, f := range []struct{ label, value string }{
		{"Task", n.TaskName},
		{"Task Id", n.TaskID},
		{"Store", n.StoreCode},
		{"Summary", n.Summary},
	} {
		if f.value != "" {
			fields = append(fields, mrkdwn(fmt.Sprintf("*%s*\n%s", f.label, f.value)))
		}
	}

	var blocks []slackBlock
	if len(fields) > 0 {
		blocks = append(blocks, slackBlock{Type: "section", Fields: fields})
	}
	if body := strings.TrimSpace(n.Message); body != "" {
		text := mrkdwn("```" + truncateLines(body, slackSectionLimit-6) + "```")
		blocks = append(blocks, slackBlock{Type: "section", Text: &text})
	}

	return slackPayload{
		Text:        n.Title,
		Attachments: []slackAttachment{{Color: slackColor(n.Type), Blocks: blocks}},
	}
}

// truncateLines cuts s to at most limit bytes at a line boundary and notes
// how many lines were left out
func truncateLines(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := 0
	size := 0
	for _, line := range lines {
		// Room for the newline and the note below.
		if size+len(line)+1 > limit-40 {
			break
		}
		size += len(line) + 1
		kept++
	}
	if kept == 0 {
		return s[:limit-40] + fmt.Sprintf("\n... (%d more lines)", len(lines))
	}
	return strings.Join(lines[:kept], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-kept)
}

// Send posts the summary to Slack. Mail recipients are ignored.
func (s *SlackNotifier) Send(ctx context.Context, n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(buildSlackPayload(n))
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}
