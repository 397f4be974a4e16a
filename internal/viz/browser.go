package viz

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/jphbridge/internal/layout"
)

const barWidth = 24

// Browser is a bubbletea model listing struct layouts with the fields of
// the selected one.
type Browser struct {
	layouts []layout.Description
	unknown map[string]bool
	cursor  int
	theme   int
	width   int
	height  int
}

// NewBrowser lists descs. Layouts named in unknown are flagged as not known
// to the loaded library.
func NewBrowser(descs []layout.Description, unknown ...layout.Tag) *Browser {
	b := &Browser{
		layouts: descs,
		unknown: make(map[string]bool, len(unknown)),
		width:   100,
		height:  30,
	}
	for _, t := range unknown {
		b.unknown[string(t)] = true
	}
	return b
}

func (b *Browser) Init() tea.Cmd { return nil }

func (b *Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return b, tea.Quit
		case "up", "k":
			if b.cursor > 0 {
				b.cursor--
			}
		case "down", "j":
			if b.cursor < len(b.layouts)-1 {
				b.cursor++
			}
		case "home", "g":
			b.cursor = 0
		case "end", "G":
			b.cursor = max(len(b.layouts)-1, 0)
		case "t":
			b.theme = (b.theme + 1) % len(Themes)
		}
	}
	return b, nil
}

// Selected returns the layout under the cursor.
func (b *Browser) Selected() (layout.Description, bool) {
	if len(b.layouts) == 0 {
		return layout.Description{}, false
	}
	return b.layouts[b.cursor], true
}

func (b *Browser) Theme() Theme { return Themes[b.theme] }

// SetTheme selects a theme by name.
func (b *Browser) SetTheme(name string) error {
	i := slices.IndexFunc(Themes, func(t Theme) bool { return t.Name == name })
	if i < 0 {
		return fmt.Errorf("unknown theme: %s (available: %v)", name, ThemeNames())
	}
	b.theme = i
	return nil
}

func (b *Browser) View() string {
	th := b.Theme()
	if len(b.layouts) == 0 {
		return th.muted().Render("no layouts registered") + "\n"
	}

	var list strings.Builder
	list.WriteString(th.title().Render("LAYOUTS") + "\n\n")
	for i, d := range b.layouts {
		line := fmt.Sprintf("%-24s %4d", d.Name, d.Size)
		if b.unknown[d.Name] {
			line += " " + th.warning().Render("?")
		}
		if i == b.cursor {
			list.WriteString(th.selected().Render("▸ "+line) + "\n")
		} else {
			list.WriteString(th.text().Render("  "+line) + "\n")
		}
	}

	view := lipgloss.JoinHorizontal(lipgloss.Top,
		Panel.Render(list.String()),
		Panel.Render(b.detail(th)))
	hints := KeyHint.Render("↑/↓ select   t theme (" + th.Name + ")   q quit")
	return view + "\n" + hints + "\n"
}

func (b *Browser) detail(th Theme) string {
	d := b.layouts[b.cursor]
	var s strings.Builder
	s.WriteString(th.title().Render(d.Name) + "\n")
	s.WriteString(Metric("size", fmt.Sprint(d.Size)) + "  " + Metric("align", fmt.Sprint(d.Align)) + "\n")
	if b.unknown[d.Name] {
		s.WriteString(th.warning().Render("library does not report this layout") + "\n")
	}
	s.WriteString("\n")
	for _, f := range d.Fields {
		typ := f.Type
		if f.Count > 0 {
			typ = fmt.Sprintf("%s(%d)", typ, f.Count)
		}
		fmt.Fprintf(&s, "%4d %-26s %-16s %s\n",
			f.Offset, f.Name, typ, SizeBar(f.Offset, f.Size, d.Size, barWidth))
	}
	return s.String()
}
