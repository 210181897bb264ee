// Bridge API reads meter telemetry from a smart meter bridge and republishes it
// over HTTP, websocket, MQTT and a local SQLite history.
package main

func main() {
	Execute()
}
