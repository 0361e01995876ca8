package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"ai-chat-transcript-service/internal/models"
)

const defaultTimeout = 10 * time.Second

type transcriptView struct {
	SessionID      string             `json:"sessionId"`
	State          string             `json:"state"`
	ConversationID string             `json:"conversationId"`
	Entries        []models.EntryView `json:"entries"`
	Awaiting       bool               `json:"awaiting"`
}

type client struct {
	base string
	http *http.Client
}

func clientFrom(cmd *cobra.Command) *client {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return &client{base: strings.TrimRight(addr, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return errors.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Submit a user message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			wait, _ := cmd.Flags().GetBool("wait")
			c := clientFrom(cmd)

			var resp struct {
				Sent bool           `json:"sent"`
				View transcriptView `json:"view"`
			}
			body := map[string]string{"text": strings.Join(args, " "), "model": model}
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/messages", body, &resp); err != nil {
				return err
			}
			if !resp.Sent {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to send")
				return nil
			}
			if !wait {
				printTranscript(cmd.OutOrStdout(), resp.View)
				return nil
			}
			view, err := waitForReply(cmd, c)
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().StringP("model", "m", "", "Model to answer with (service default when empty)")
	cmd.Flags().BoolP("wait", "w", true, "Wait for the assistant reply")
	return cmd
}

func waitForReply(cmd *cobra.Command, c *client) (transcriptView, error) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	deadline := time.Now().Add(timeout)
	for {
		var view transcriptView
		if err := c.do(cmd.Context(), http.MethodGet, "/v1/transcript", nil, &view); err != nil {
			return view, err
		}
		if !view.Awaiting {
			return view, nil
		}
		if time.Now().After(deadline) {
			return view, errors.New("timed out waiting for reply; run `chatctl transcript` later")
		}
		select {
		case <-cmd.Context().Done():
			return view, cmd.Context().Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func newTranscriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript",
		Short: "Print the active transcript",
		RunE: func(cmd *cobra.Command, args []string) error {
			var view transcriptView
			if err := clientFrom(cmd).do(cmd.Context(), http.MethodGet, "/v1/transcript", nil, &view); err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <conversation-id>",
		Short: "Switch to an existing conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var view transcriptView
			path := "/v1/conversations/" + url.PathEscape(args[0]) + "/open"
			if err := clientFrom(cmd).do(cmd.Context(), http.MethodPost, path, nil, &view); err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			var view transcriptView
			if err := clientFrom(cmd).do(cmd.Context(), http.MethodPost, "/v1/conversations/new", nil, &view); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s started\n", view.SessionID)
			return nil
		},
	}
}

func newConversationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []models.ConversationSummary
			if err := clientFrom(cmd).do(cmd.Context(), http.MethodGet, "/v1/conversations?refresh=true", nil, &list); err != nil {
				return err
			}
			for _, c := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.ID, truncate(c.Content, 60))
			}
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List selectable models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Models []string `json:"models"`
			}
			if err := clientFrom(cmd).do(cmd.Context(), http.MethodGet, "/v1/models", nil, &out); err != nil {
				return err
			}
			for _, m := range out.Models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/conversations/" + url.PathEscape(args[0])
			if err := clientFrom(cmd).do(cmd.Context(), http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func printTranscript(w io.Writer, view transcriptView) {
	header := view.State
	if view.ConversationID != "" {
		header += " " + view.ConversationID
	}
	fmt.Fprintf(w, "# %s (%s)\n", view.SessionID, header)
	for _, e := range view.Entries {
		switch e.Kind {
		case models.KindUser:
			fmt.Fprintf(w, "you: %s\n", e.Text)
		case models.KindAssistant:
			fmt.Fprintf(w, "assistant: %s\n", e.Text)
		case models.KindAssistantMulti:
			for _, r := range e.Responses {
				fmt.Fprintf(w, "assistant [%s]: %s\n", r.Model, r.Text)
			}
		}
	}
	if view.Awaiting {
		fmt.Fprintln(w, "... awaiting reply")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
