// Package jobs runs the periodic batch work of the application (recurring
// task generation and due-soon reminders) on a daily UTC schedule inside
// the server process.
package jobs
