// Package automode selects which autonomous routine runs when the robot
// enters autonomous. A dashboard (or the CLI) sets the desired mode at any
// time; the robot calls Update while disabled so the routine is built before
// the match starts, not when it is needed.
package automode
