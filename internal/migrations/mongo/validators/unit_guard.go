package validators

import "go.mongodb.org/mongo-driver/bson"

var UnitGuardValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "version"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},
			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
