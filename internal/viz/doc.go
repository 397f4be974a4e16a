// Package viz renders bridge state in the terminal.
//
// Lipgloss styles are shared by every command. [Browser] is a Bubble Tea
// model for walking the registered struct layouts and their field offsets.
//
// # Key Bindings
//
//	↑/k ↓/j - Move the selection
//	g G     - First and last layout
//	t       - Cycle color themes
//	q       - Quit
package viz
