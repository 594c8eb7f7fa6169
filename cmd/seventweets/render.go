package main

import (
	"fmt"
	"time"

	"seventweets/pkg/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	primaryColor = lipgloss.Color("#7571f9")
	mutedColor   = lipgloss.Color("#6c757d")

	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#42c767"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff9f43"))
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(primaryColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().
					Foreground(lipgloss.Color("#ffffff")).
					Bold(true).
					Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// renderPeersTable lists peers in registry order, marking self
func renderPeersTable(peers []types.PeerIdentity, self types.PeerIdentity) string {
	if len(peers) == 0 {
		return mutedStyle.Render("No known nodes")
	}

	t := newTable("#", "NAME", "ADDRESS", "TYPE")
	for i, p := range peers {
		kind := lipgloss.NewStyle().Foreground(lipgloss.Color("#ff9f43")).Render("PEER")
		if p == self {
			kind = lipgloss.NewStyle().Foreground(lipgloss.Color("#00d2d3")).Bold(true).Render("SELF")
		}
		t.Row(fmt.Sprintf("%d", i+1), p.Name, p.Address, kind)
	}
	return t.Render()
}

func renderTweetsTable(tweets []types.Tweet) string {
	if len(tweets) == 0 {
		return mutedStyle.Render("No tweets found")
	}

	t := newTable("ID", "NODE", "CREATED", "TWEET")
	for _, tw := range tweets {
		created := ""
		if !tw.CreatedAt.IsZero() {
			created = tw.CreatedAt.Local().Format(time.DateTime)
		}
		t.Row(fmt.Sprintf("%d", tw.ID), tw.Name, created, tw.Tweet)
	}
	return t.Render()
}
