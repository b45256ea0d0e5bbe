package connectors

const (
	TopicLinkStatus   = "link.status"
	TopicAdapterState = "adapter.state"
	TopicCommand      = "command"
	TopicRawFrameIn   = "raw.frame.in"
	TopicRawFrameOut  = "raw.frame.out"
)
