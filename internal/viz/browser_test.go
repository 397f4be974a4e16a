package viz

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/jphbridge/internal/layout"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBrowserNavigation(t *testing.T) {
	descs := layout.Default().Describe()
	if len(descs) < 2 {
		t.Fatalf("need at least two layouts, got %d", len(descs))
	}
	b := NewBrowser(descs)

	b.Update(tea.KeyMsg{Type: tea.KeyUp})
	if d, _ := b.Selected(); d.Name != descs[0].Name {
		t.Errorf("up at top moved to %s", d.Name)
	}
	b.Update(key("j"))
	if d, _ := b.Selected(); d.Name != descs[1].Name {
		t.Errorf("selected %s, want %s", d.Name, descs[1].Name)
	}
	b.Update(key("G"))
	if d, _ := b.Selected(); d.Name != descs[len(descs)-1].Name {
		t.Errorf("end selected %s", d.Name)
	}
	b.Update(tea.KeyMsg{Type: tea.KeyDown})
	if d, _ := b.Selected(); d.Name != descs[len(descs)-1].Name {
		t.Errorf("down at bottom moved to %s", d.Name)
	}
	b.Update(key("g"))
	if d, _ := b.Selected(); d.Name != descs[0].Name {
		t.Errorf("home selected %s", d.Name)
	}
}

func TestBrowserThemeCycles(t *testing.T) {
	b := NewBrowser(layout.Default().Describe())
	for i := range len(Themes) {
		if got := b.Theme().Name; got != Themes[i].Name {
			t.Errorf("step %d: theme %s, want %s", i, got, Themes[i].Name)
		}
		b.Update(key("t"))
	}
	if b.Theme().Name != Themes[0].Name {
		t.Errorf("theme did not wrap, got %s", b.Theme().Name)
	}
}

func TestBrowserSetTheme(t *testing.T) {
	b := NewBrowser(layout.Default().Describe())
	if err := b.SetTheme("retro"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if b.Theme().Name != "retro" {
		t.Errorf("theme %s, want retro", b.Theme().Name)
	}
	if err := b.SetTheme("nope"); err == nil {
		t.Error("expected error for unknown theme")
	}
	if b.Theme().Name != "retro" {
		t.Errorf("failed SetTheme changed theme to %s", b.Theme().Name)
	}
}

func TestBrowserQuit(t *testing.T) {
	b := NewBrowser(layout.Default().Describe())
	_, cmd := b.Update(key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("q command produced %T, want tea.QuitMsg", cmd())
	}
}

func TestBrowserView(t *testing.T) {
	descs := layout.Default().Describe()
	b := NewBrowser(descs, layout.Tag(descs[0].Name))
	view := b.View()

	for _, want := range []string{descs[0].Name, descs[0].Fields[0].Name, "does not report"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	b.Update(key("j"))
	if strings.Contains(b.View(), "does not report") {
		t.Error("unknown warning shown for a known layout")
	}
}

func TestBrowserEmpty(t *testing.T) {
	b := NewBrowser(nil)
	if _, ok := b.Selected(); ok {
		t.Error("empty browser has a selection")
	}
	b.Update(key("G"))
	if !strings.Contains(b.View(), "no layouts") {
		t.Errorf("unexpected view %q", b.View())
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline(nil, 5); got != strings.Repeat("─", 5) {
		t.Errorf("empty sparkline %q", got)
	}
	if got := Sparkline([]float64{1, 2, 3}, 0); got != "" {
		t.Errorf("zero width sparkline %q", got)
	}
	if got := Sparkline([]float64{1, 5, 9, 3}, 4); !strings.Contains(got, "▁") || !strings.Contains(got, "█") {
		t.Errorf("sparkline %q lacks extremes", got)
	}
}
