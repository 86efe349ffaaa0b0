// Package imghost uploads snapshot images to the hosting services trackers
// accept and formats the returned links for upload descriptions.
package imghost
