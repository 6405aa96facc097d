// Package connection manages the lifecycle of the single shared
// transport connection: state tracking, automatic reconnection with
// exponential backoff, and resume notification.
//
// A resume fires after every successful reconnection that followed a
// connection loss. The topic router listens for resumes to tear down
// and recreate transport-level subscriptions, guarding against silent
// message loss across reconnects without resetting subscriber state.
package connection
