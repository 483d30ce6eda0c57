package natsbus

import "fmt"

// Engine request subjects, answered by whichever engine serves the bus.
const (
	TopicEngineSubmit = "fedpipe.engine.submit"
	TopicEngineStatus = "fedpipe.engine.status"
	TopicEngineCancel = "fedpipe.engine.cancel"
)

func TopicEventsJob(jobID string) string {
	return fmt.Sprintf("events.job.%s", jobID)
}

const (
	TopicEventsAll  = "events.>"
	TopicEventsJobs = "events.job.*"
)

// TopicEventsFitExecuted carries one event per scheduled fit.
const TopicEventsFitExecuted = "events.fit.executed"
