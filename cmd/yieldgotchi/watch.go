package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cl "yieldgotchi/internal/cli"
	"yieldgotchi/internal/guardian"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type tickMsg time.Time

type accountMsg struct {
	view guardian.View
	err  error
}

// watchModel redraws the account card every second. Pending yield is
// projected locally from the last fetched vault; the account itself is
// refetched every refetchEvery.
type watchModel struct {
	client       *cl.Client
	owner        string
	refetchEvery time.Duration

	view      *guardian.View
	fetchedAt time.Time
	now       time.Time
	err       error
}

func newWatchCmd(apiBase *string) *cobra.Command {
	var refetch time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of your guardian and ticking yield",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("watch needs an interactive terminal, use `yieldgotchi status` instead")
			}
			if refetch < time.Second {
				refetch = time.Second
			}
			m := watchModel{
				client:       newClient(apiBase),
				owner:        sess.Owner,
				refetchEvery: refetch,
				now:          time.Now().UTC(),
			}
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&refetch, "refetch", 15*time.Second, "how often to reload the account from the API")
	return cmd
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}
	case tickMsg:
		m.now = time.Time(msg).UTC()
		cmds := []tea.Cmd{tick()}
		if !m.fetchedAt.IsZero() && m.now.Sub(m.fetchedAt) >= m.refetchEvery {
			m.fetchedAt = m.now
			cmds = append(cmds, m.fetch())
		}
		return m, tea.Batch(cmds...)
	case accountMsg:
		m.fetchedAt = time.Now().UTC()
		m.err = msg.err
		if msg.err == nil {
			view := msg.view
			m.view = &view
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	var out string
	switch {
	case m.view != nil:
		out = renderAccount(*m.view, m.now)
	case m.err != nil:
		out = cardStyle.Render(danger.Sprintf("Could not load account: %v", m.err))
	default:
		out = cardStyle.Render("Loading...")
	}
	if m.err != nil && m.view != nil {
		out += "\n" + warn.Sprintf("last refresh failed: %v", m.err)
	}
	return out + "\n" + dimStyle.Render("q quit  r refresh")
}

func (m watchModel) fetch() tea.Cmd {
	client, owner := m.client, m.owner
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		view, err := client.Account(ctx, owner)
		return accountMsg{view: view, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
