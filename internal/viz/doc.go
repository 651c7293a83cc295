// Package viz renders solutions and stored runs in the terminal.
//
// [Plot] draws one state row against its samples with asciigraph. Phase
// boundaries of a multi-phase run are drawn as separate series so a jump at
// a transition stays visible. [Summary] prints the flags, phase durations and
// cost of a solution with lipgloss styles.
package viz
