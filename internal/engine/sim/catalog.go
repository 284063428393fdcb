package sim

// role is an element's position in a graph.
type role int

const (
	roleFilter role = iota
	roleSource
	roleSink
)

// factory describes an element type the simulated engine can build.
type factory struct {
	name     string
	typeName string
	role     role
	// live sources produce data in real time and cannot preroll
	live bool
	// needsLocation elements fail READY->PAUSED without a usable location property
	needsLocation bool
}

var factories = map[string]factory{}

func register(f factory) {
	factories[f.name] = f
}

func init() {
	for _, f := range []factory{
		{name: "fakesrc", typeName: "GstFakeSrc", role: roleSource},
		{name: "fakesink", typeName: "GstFakeSink", role: roleSink},
		{name: "videotestsrc", typeName: "GstVideoTestSrc", role: roleSource},
		{name: "audiotestsrc", typeName: "GstAudioTestSrc", role: roleSource},
		{name: "filesrc", typeName: "GstFileSrc", role: roleSource, needsLocation: true},
		{name: "filesink", typeName: "GstFileSink", role: roleSink, needsLocation: true},
		{name: "appsrc", typeName: "GstAppSrc", role: roleSource},
		{name: "appsink", typeName: "GstAppSink", role: roleSink},
		{name: "udpsrc", typeName: "GstUDPSrc", role: roleSource, live: true},
		{name: "udpsink", typeName: "GstUDPSink", role: roleSink},
		{name: "v4l2src", typeName: "GstV4l2Src", role: roleSource, live: true},
		{name: "autovideosink", typeName: "GstAutoVideoSink", role: roleSink},
		{name: "autoaudiosink", typeName: "GstAutoAudioSink", role: roleSink},
		{name: "identity", typeName: "GstIdentity", role: roleFilter},
		{name: "queue", typeName: "GstQueue", role: roleFilter},
		{name: "tee", typeName: "GstTee", role: roleFilter},
		{name: "capsfilter", typeName: "GstCapsFilter", role: roleFilter},
		{name: "videoconvert", typeName: "GstVideoConvert", role: roleFilter},
		{name: "videoscale", typeName: "GstVideoScale", role: roleFilter},
		{name: "audioconvert", typeName: "GstAudioConvert", role: roleFilter},
		{name: "x264enc", typeName: "GstX264Enc", role: roleFilter},
		{name: "decodebin", typeName: "GstDecodeBin", role: roleFilter},
	} {
		register(f)
	}
}

func lookupFactory(name string) (factory, bool) {
	f, ok := factories[name]
	return f, ok
}
