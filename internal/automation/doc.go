// Package automation switches devices from sensor readings.
//
// A device linked to a sensor carries a hysteresis band (TurnOnBelow,
// TurnOffAbove). Each reading is applied once to every linked device whose
// automation is enabled:
//
//	value <= TurnOnBelow  and off  -> on
//	value >= TurnOffAbove and on   -> off
//	otherwise                      -> unchanged
//
// Engine owns the sensor table and serialises readings, links and
// re-evaluation behind one mutex. Device state is still guarded by each
// device's own lock, so the scheduler may switch the same device between
// readings.
//
// # Usage
//
//	engine := automation.NewEngine(registry, store, clock.System{})
//	engine.SetNotifier(notifier)
//	engine.RegisterSensor(device.NewSensor("lux", "Hall light level", "lx"))
//
//	engine.LinkByID(ctx, "hall-lamp", "lux", 400, 600)
//	engine.OnReadingByID(ctx, "lux", 350) // hall-lamp switches on
package automation
