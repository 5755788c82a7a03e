package rabbitmq

import amqp "github.com/rabbitmq/amqp091-go"

func amqpPublishing(body string) amqp.Publishing {
	return amqp.Publishing{ContentType: "application/json", Body: []byte(body)}
}
