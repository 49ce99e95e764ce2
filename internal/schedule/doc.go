// Package schedule runs calendar-style device commands.
//
// A Task names a device, an action text, a minute-precision time and a
// repeat policy (none, daily, weekly, monthly). The Scheduler keeps tasks in
// insertion order and, on every tick:
//
//  1. selects the tasks whose time is not after now;
//  2. for each, in list order, applies the action to the device, reports it,
//     and reschedules it (daily +1 day, weekly +7 days, monthly +1 calendar
//     month) or removes it (none);
//  3. saves the whole list once.
//
// A task whose repeat policy is not recognised fires once, is reported, and
// is frozen: it stays listed but is never due again until Update gives it a
// new time and policy.
//
// The loop is driven by robfig/cron with an "@every" entry; a slow sweep
// causes the next one to be skipped, never overlapped.
package schedule
