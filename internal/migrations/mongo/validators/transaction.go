package validators

import "go.mongodb.org/mongo-driver/bson"

var TransactionValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"reservation_id",
			"owner_id",
			"amount_cents",
			"currency",
			"state",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"reservation_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"amount_cents": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"currency": bson.M{
				"bsonType":  "string",
				"minLength": 3,
				"maxLength": 3,
			},

			"state": bson.M{
				"bsonType": "string",
				"enum": []string{
					"PENDING",
					"SUCCEEDED",
					"FAILED",
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"settled_at": bson.M{
				"bsonType": "date",
			},

			"claimed_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
