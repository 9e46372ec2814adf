// Package ui implements a live terminal view of one download task using bubbletea's Elm architecture.
//
// The view moves through two states:
//  1. [WatchView] : progress bar, counters, current activity and in-flight items
//  2. [ResultView] : final summary and a filterable list of every item
//
// The [Model] subscribes to the task through a [Feed] (the notification bridge) with a
// [tasks.ChannelSubscriber]. Each bridge message arrives as a [Msg] via waitForUpdate, so the
// program never blocks on the bridge. The watch ends when the bridge closes the subscriber after
// the terminal snapshot.
//
// Keyboard navigation uses vim-style bindings (j/k, /, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
