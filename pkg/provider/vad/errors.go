package vad

import "errors"

// ErrInit indicates the classifier artifact could not be loaded or the
// inference runtime could not be initialised. This is fatal for the whole
// engine at process startup: no heuristic fallback is substituted.
var ErrInit = errors.New("vad: classifier initialisation failed")
