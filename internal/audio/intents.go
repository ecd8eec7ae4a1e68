package audio

// intentRoute maps a matched intent token to the device class and command
// name the router should dispatch (spec.md §4.7 step 6: movement verbs
// route to the wheel class, poses to the servo class).
type intentRoute struct {
	DeviceType  string
	CommandName string
}

var intentRoutes = map[string]intentRoute{
	"forward":  {DeviceType: "wheel", CommandName: "forward"},
	"backward": {DeviceType: "wheel", CommandName: "backward"},
	"left":     {DeviceType: "wheel", CommandName: "left"},
	"right":    {DeviceType: "wheel", CommandName: "right"},
	"stop":     {DeviceType: "wheel", CommandName: "stop"},

	"resetposition": {DeviceType: "servo", CommandName: "resetposition"},
	"handsup":       {DeviceType: "servo", CommandName: "handsup"},
	"headleft":      {DeviceType: "servo", CommandName: "headleft"},
	"headright":     {DeviceType: "servo", CommandName: "headright"},
	"headup":        {DeviceType: "servo", CommandName: "headup"},
	"headdown":      {DeviceType: "servo", CommandName: "headdown"},
}
