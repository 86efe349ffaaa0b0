// Package snapshot grabs still frames from video files with ffmpeg. Frames
// are spaced evenly across the runtime, or picked at random for trackers
// that ask for it, and cached per release so repeated runs reuse them.
package snapshot
