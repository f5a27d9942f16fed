// Package mqtt provides the broker connection shared by the ingestion
// bridge (subscriber) and the control dispatcher (publisher).
//
// It manages:
//   - connection to the broker with paho's auto-reconnect and backoff
//   - lifecycle hooks (connecting, connected, connection lost)
//   - tracked subscriptions with panic-safe handlers
//   - bounded publishes honouring a caller context
//   - Last Will and Testament on homewatch/system/status
//
// Usage:
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetOnConnect(bridge.HandleConnected)
//	if err := client.Connect(ctx); !mqtt.Connected(err) {
//	    return err
//	}
//	defer client.Close()
package mqtt
