// Package upb is a client library for Universal Powerline Bus (UPB)
// networks, spoken through a powerline interface module (PIM) attached over
// a serial port or a TCP serial bridge.
//
// A Client ties the pieces together: the pim session that owns the
// transport, the registry of devices and links (optionally preloaded from an
// UPStart export document), and an event bus carrying connection and state
// change notifications.
//
//	client, err := upb.NewClient(upb.Config{
//		URL:            "serial:///dev/ttyUSB0",
//		ExportFilePath: "house.upe",
//	})
//	if err != nil {
//		...
//	}
//	client.Bus().Subscribe(events.DeviceUpdated, func(e events.Event) {
//		fmt.Println(e.Device.Key(), e.Device.Status.Level)
//	})
//	if err := client.Connect(ctx); err != nil {
//		...
//	}
//	client.TurnOn(ctx, "194_9_0", 80, 5)
//
// Levels are percentages 0-100. Fade rates are given in seconds and mapped
// to the nearest UPB rate code unless the use_raw_rate flag is set.
package upb
