// Package domain defines the core business entities and interfaces for uploadarr.
//
// This package contains the domain models (MediaItem, Release, UploadRequest)
// and the Tracker contract every site adapter implements, together with the
// optional capability interfaces (PasskeyProvider) and the Prompter used for
// interactive fallbacks. All interfaces accept context for cancellation and
// timeout support.
package domain
