// Package ui is the interactive picker shown by `agent-arcade play` when
// the agent or game was not named on the command line. It selects names
// only; agent and game output is never rendered here.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/asheshgoplani/agent-arcade/internal/config"
)

// Choice is one selectable row: a name plus a dimmed detail column.
type Choice struct {
	Name   string
	Detail string

	shell bool // synthetic "no game" row
}

// Selection is the picker outcome. An empty Game means plain shell.
// Accepted is false when the user cancelled.
type Selection struct {
	Agent    string
	Game     string
	Accepted bool
}

type pickerStep int

const (
	stepAgent pickerStep = iota
	stepGame
)

const maxPickerRows = 10

// Picker is the two-step play selector: agent first, then game.
type Picker struct {
	agents []Choice
	games  []Choice

	step      pickerStep
	wantAgent bool
	wantGame  bool

	input    textinput.Model
	filtered []Choice
	cursor   int

	selection Selection
	width     int
	height    int

	themeCh <-chan bool
}

// NewPicker builds a picker over the configured agents and games.
// pickAgent and pickGame control which steps are shown; a skipped step
// leaves the corresponding Selection field empty.
func NewPicker(cfg *config.Config, pickAgent, pickGame bool) *Picker {
	ti := textinput.New()
	ti.Placeholder = "Type to filter..."
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 40

	p := &Picker{
		agents:    agentChoices(cfg),
		games:     gameChoices(cfg),
		wantAgent: pickAgent,
		wantGame:  pickGame,
		input:     ti,
	}
	if pickAgent {
		p.step = stepAgent
	} else {
		p.step = stepGame
	}
	p.refilter()
	return p
}

func agentChoices(cfg *config.Config) []Choice {
	profiles := cfg.AgentProfiles()
	choices := make([]Choice, 0, len(profiles))
	for _, prof := range profiles {
		detail := prof.Command
		if len(prof.Args) > 0 {
			detail += " " + strings.Join(prof.Args, " ")
		}
		if detail == "" {
			detail = "your shell"
		}
		choices = append(choices, Choice{Name: prof.Name, Detail: detail})
	}
	return choices
}

func gameChoices(cfg *config.Config) []Choice {
	names := cfg.GameNames()
	choices := make([]Choice, 0, len(names)+1)
	choices = append(choices, Choice{Name: "shell", Detail: "no game, keep a plain shell", shell: true})
	for _, name := range names {
		_, def, ok := cfg.ResolveGame(name)
		if !ok {
			continue
		}
		detail := def.Description
		if detail == "" {
			detail = def.Command
			if len(def.Args) > 0 {
				detail += " " + strings.Join(def.Args, " ")
			}
		}
		choices = append(choices, Choice{Name: name, Detail: detail})
	}
	return choices
}

func (p *Picker) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, p.listenTheme())
}

// themeChangedMsg carries an OS dark mode change; true means dark.
type themeChangedMsg bool

// listenTheme waits for the next dark mode change. Re-issued from
// Update after each message so the watcher keeps feeding the program.
func (p *Picker) listenTheme() tea.Cmd {
	ch := p.themeCh
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		isDark, ok := <-ch
		if !ok {
			return nil
		}
		return themeChangedMsg(isDark)
	}
}

func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return p, nil

	case themeChangedMsg:
		if bool(msg) {
			InitTheme("dark")
		} else {
			InitTheme("light")
		}
		return p, p.listenTheme()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			p.selection = Selection{}
			return p, tea.Quit

		case "up", "ctrl+k":
			if p.cursor > 0 {
				p.cursor--
			}
			return p, nil

		case "down", "ctrl+j":
			if p.cursor < len(p.filtered)-1 {
				p.cursor++
			}
			return p, nil

		case "enter":
			return p.choose()

		default:
			var cmd tea.Cmd
			p.input, cmd = p.input.Update(msg)
			p.refilter()
			return p, cmd
		}
	}

	return p, nil
}

// choose accepts the row under the cursor and either advances to the
// next step or finishes.
func (p *Picker) choose() (tea.Model, tea.Cmd) {
	if len(p.filtered) == 0 {
		return p, nil
	}
	c := p.filtered[p.cursor]

	switch p.step {
	case stepAgent:
		p.selection.Agent = c.Name
		if p.wantGame {
			p.step = stepGame
			p.input.SetValue("")
			p.refilter()
			return p, nil
		}
	case stepGame:
		if !c.shell {
			p.selection.Game = c.Name
		}
	}

	p.selection.Accepted = true
	return p, tea.Quit
}

// refilter recomputes the visible rows from the current step and query.
func (p *Picker) refilter() {
	items := p.agents
	if p.step == stepGame {
		items = p.games
	}
	p.filtered = filterChoices(items, p.input.Value())
	p.cursor = 0
}

// choiceSource adapts []Choice to fuzzy.Source, matching on names.
type choiceSource []Choice

func (s choiceSource) String(i int) string { return s[i].Name }
func (s choiceSource) Len() int            { return len(s) }

// filterChoices returns the choices fuzzy-matching query, best first.
// An empty query returns everything in the original order.
func filterChoices(items []Choice, query string) []Choice {
	if query == "" {
		return items
	}
	matches := fuzzy.FindFrom(query, choiceSource(items))
	out := make([]Choice, 0, len(matches))
	for _, m := range matches {
		out = append(out, items[m.Index])
	}
	return out
}

func (p *Picker) View() string {
	title := "Select agent"
	if p.step == stepGame {
		title = "Select game"
	}
	header := TitleStyle.Render(title)

	inputBox := PickerInputStyle.Render(p.input.View())

	var rows strings.Builder
	visible := p.filtered
	if len(visible) > maxPickerRows {
		visible = visible[:maxPickerRows]
	}
	for i, c := range visible {
		name := runewidth.FillRight(runewidth.Truncate(c.Name, 16, "…"), 16)
		detail := runewidth.Truncate(c.Detail, 38, "…")
		if i == p.cursor {
			rows.WriteString(PickerSelectedStyle.Render("› " + name + detail))
		} else {
			rows.WriteString(PickerItemStyle.Render("  " + name + PickerDetailStyle.Render(detail)))
		}
		if i < len(visible)-1 {
			rows.WriteString("\n")
		}
	}

	count := PickerCountStyle.Render("  " + formatCount(len(p.filtered)))
	keys := PickerHintStyle.Render("  [Enter] Select  [↑↓] Navigate  [Esc] Cancel")

	content := header + "\n\n" + inputBox + "\n\n" + rows.String() + "\n" + count + "\n" + keys

	overlayWidth := 64
	if p.width > 0 && p.width < overlayWidth+10 {
		overlayWidth = p.width - 10
		if overlayWidth < 30 {
			overlayWidth = 30
		}
	}
	overlay := PickerBoxStyle.Width(overlayWidth).Render(content)

	return centerInScreen(overlay, p.width, p.height)
}

func formatCount(count int) string {
	if count == 0 {
		return "No matches"
	}
	if count == 1 {
		return "1 match"
	}
	return fmt.Sprintf("%d matches", count)
}

// centerInScreen centers content in the terminal.
func centerInScreen(content string, screenWidth, screenHeight int) string {
	lines := strings.Split(content, "\n")
	contentHeight := len(lines)
	contentWidth := 0
	for _, line := range lines {
		if w := lipgloss.Width(line); w > contentWidth {
			contentWidth = w
		}
	}

	verticalPad := (screenHeight - contentHeight) / 2
	if verticalPad < 0 {
		verticalPad = 0
	}
	horizontalPad := (screenWidth - contentWidth) / 2
	if horizontalPad < 0 {
		horizontalPad = 0
	}

	var result strings.Builder
	for i := 0; i < verticalPad; i++ {
		result.WriteString("\n")
	}
	pad := strings.Repeat(" ", horizontalPad)
	for i, line := range lines {
		result.WriteString(pad)
		result.WriteString(line)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

// RunPicker shows the interactive selector and blocks until the user
// confirms or cancels. The palette follows OS dark mode changes while
// the picker is open.
func RunPicker(ctx context.Context, cfg *config.Config, pickAgent, pickGame bool) (Selection, error) {
	if !pickAgent && !pickGame {
		return Selection{Accepted: true}, nil
	}

	p := NewPicker(cfg, pickAgent, pickGame)

	if tw := NewThemeWatcher(ctx); tw != nil {
		p.themeCh = tw.ChangeChannel()
		defer tw.Close()
	}

	prog := tea.NewProgram(p, tea.WithAltScreen(), tea.WithContext(ctx))
	m, err := prog.Run()
	if err != nil {
		return Selection{}, fmt.Errorf("picker: %w", err)
	}
	return m.(*Picker).selection, nil
}
