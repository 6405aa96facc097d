// Package config holds the settings surface of the delivery layer.
//
// Settings are explicit values passed into constructors; there is no
// ambient global configuration or settings broadcast. Components that
// need a runtime settings change receive a new Settings value through
// their UpdateSettings method.
package config
