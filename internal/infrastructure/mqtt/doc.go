// Package mqtt connects the bridge to an MQTT broker.
//
// It provides:
//   - Connection management with auto-reconnect and subscription restore
//   - Publishing with QoS validation and a payload size cap
//   - A retained Last Will on the system status topic
//   - Topic builders for the flat {prefix}/{category}/{protocol}/{id} layout
//
// The mini-split bridge listens on its command topic, answers on its ack
// topic and keeps its canonical state retained on the state topic:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Command(mqtt.Protocol, "minisplit"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on localhost
//   - Credentials come from config or MINISPLIT_MQTT_USERNAME/PASSWORD
//   - Payloads are not encrypted beyond the transport
package mqtt
