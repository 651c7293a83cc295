// Package analysis inspects post-processed solutions.
//
//   - [PhasePortrait2D]: one state against another, rendered as ASCII
//   - [PowerSpectrum]: amplitude spectrum of a uniformly resampled state
//
// Spectra need evenly spaced samples, so run them on interpolated solutions;
// [UniformStep] rejects anything else.
package analysis
