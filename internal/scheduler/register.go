package scheduler

// Cron schedules implementing the §4.10 trigger table. The monitor
// tick window is expressed as "every 15 minutes, hours 9-15" rather
// than a tight 09:30-15:30 bound — cron has no native upper-minute
// cutoff within an hour range, and a stray 09:00 or 15:45 tick is a
// no-op when there are no open positions to evaluate.
const (
	scheduleIngestionRefresh = "0 45 8 * * MON-FRI"
	scheduleSignalCycle      = "0 15 9 * * MON-FRI"
	scheduleMonitorTick      = "0 0/15 9-15 * * MON-FRI"
	scheduleEndOfDay         = "0 30 15 * * MON-FRI"
	scheduleRegistryReload   = "0 0 0 * * *"
	scheduleLearningSummary  = "0 0 7 1 * *"
	scheduleChatPoll         = "@every 2s"
)

// Jobs bundles every job RegisterTradingJobs wires onto a Scheduler.
type Jobs struct {
	Ingestion *IngestionJob
	Signal    *SignalCycleJob
	Monitor   *MonitorTickJob
	EndOfDay  *EndOfDayJob
	Registry  *RegistryReloadJob
	Learning  *LearningSummaryJob
	ChatPoll  *ChatPollJob
}

// RegisterTradingJobs wires every §4.10 trigger onto sched.
func RegisterTradingJobs(sched *Scheduler, jobs Jobs) error {
	entries := []struct {
		schedule string
		job      Job
	}{
		{scheduleIngestionRefresh, jobs.Ingestion},
		{scheduleSignalCycle, jobs.Signal},
		{scheduleMonitorTick, jobs.Monitor},
		{scheduleEndOfDay, jobs.EndOfDay},
		{scheduleRegistryReload, jobs.Registry},
		{scheduleLearningSummary, jobs.Learning},
		{scheduleChatPoll, jobs.ChatPoll},
	}

	for _, e := range entries {
		if err := sched.AddJob(e.schedule, e.job); err != nil {
			return err
		}
	}
	return nil
}
