package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/depstack/depstack/pkg/npm/snapshot"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// inspectCommand creates the inspect command for browsing lockfiles.
func (c *CLI) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [lockfile]",
		Short: "Browse a lockfile interactively",
		Long: `Browse the packages of a lockfile in an interactive list.

Navigate with the arrow keys, press enter to toggle the dependency panel
for the selected package, and q to quit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "depstack.lock"
			if len(args) > 0 {
				input = args[0]
			}
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read lockfile %s: %w", input, err)
			}
			snap, err := snapshot.ParseLockfile(data)
			if err != nil {
				return fmt.Errorf("parse lockfile %s: %w", input, err)
			}

			model := NewLockfileModel(input, snap)
			_, err = tea.NewProgram(model, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

// packageRow is one list entry of the lockfile browser.
type packageRow struct {
	id  string
	pkg *snapshot.ResolvedPackage
}

// LockfileModel is the bubbletea model for interactive lockfile browsing.
type LockfileModel struct {
	Name     string
	Rows     []packageRow
	Roots    map[string]struct{}
	Cursor   int
	Height   int
	Offset   int
	ShowDeps bool
}

// NewLockfileModel creates a browser model over the packages of a snapshot.
func NewLockfileModel(name string, snap *snapshot.Snapshot) LockfileModel {
	rows := make([]packageRow, 0, len(snap.Packages))
	for id, pkg := range snap.Packages {
		rows = append(rows, packageRow{id: id, pkg: pkg})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	roots := make(map[string]struct{}, len(snap.RootPackages))
	for _, id := range snap.RootPackages {
		roots[id.String()] = struct{}{}
	}
	return LockfileModel{
		Name:   name,
		Rows:   rows,
		Roots:  roots,
		Height: 15,
	}
}

func (m LockfileModel) Init() tea.Cmd {
	return nil
}

func (m LockfileModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Rows)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			m.ShowDeps = !m.ShowDeps
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 10
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m LockfileModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Lockfile " + m.Name))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ dependencies  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Rows) {
		end = len(m.Rows)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Rows[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		copyIndex := ""
		if r.pkg.CopyIndex > 0 {
			copyIndex = fmt.Sprintf("%d", r.pkg.CopyIndex)
		}

		status := packageStatus(r, m.Roots)
		rows = append(rows, []string{cursor, r.id, fmt.Sprintf("%d", len(r.pkg.Dependencies)), copyIndex, status})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Package", "Deps", "Copy", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			actualIdx := m.Offset + row
			if actualIdx >= len(m.Rows) {
				return lipgloss.NewStyle()
			}
			r := m.Rows[actualIdx]

			base := lipgloss.NewStyle()
			if r.pkg.Deprecated != nil {
				base = base.Foreground(colorDim)
			}
			if actualIdx == m.Cursor {
				return base.Bold(true).Foreground(colorGreen)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Rows))))
	b.WriteString("\n")

	if m.ShowDeps && len(m.Rows) > 0 {
		b.WriteString(m.depsPanel())
	}

	return b.String()
}

// depsPanel renders the dependency list of the selected package.
func (m LockfileModel) depsPanel() string {
	var b strings.Builder
	r := m.Rows[m.Cursor]

	b.WriteString("\n")
	b.WriteString(listSelectedStyle.Render(r.id))
	b.WriteString("\n")

	if len(r.pkg.Dependencies) == 0 {
		b.WriteString(listDimStyle.Render("  no dependencies"))
		b.WriteString("\n")
		return b.String()
	}

	specifiers := make([]string, 0, len(r.pkg.Dependencies))
	for specifier := range r.pkg.Dependencies {
		specifiers = append(specifiers, specifier)
	}
	sort.Strings(specifiers)

	for _, specifier := range specifiers {
		marker := ""
		if _, optional := r.pkg.OptionalDependencies[specifier]; optional {
			marker = listDimStyle.Render(" (optional)")
		}
		if _, optionalPeer := r.pkg.OptionalPeers[specifier]; optionalPeer {
			marker = listDimStyle.Render(" (optional peer)")
		}
		b.WriteString(fmt.Sprintf("  %-25s %s %s%s\n",
			specifier, listDimStyle.Render(iconArrow), r.pkg.Dependencies[specifier], marker))
	}
	return b.String()
}

func packageStatus(r packageRow, roots map[string]struct{}) string {
	var parts []string
	if _, isRoot := roots[r.id]; isRoot {
		parts = append(parts, "root")
	}
	if r.pkg.Deprecated != nil {
		parts = append(parts, "deprecated")
	}
	if r.pkg.HasBin {
		parts = append(parts, "bin")
	}
	if r.pkg.HasInstallScript {
		parts = append(parts, "scripts")
	}
	return strings.Join(parts, ", ")
}
