package validators

import "go.mongodb.org/mongo-driver/bson"

var SyncLogValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"trip_id",
			"operation",
			"was_conflict",
			"timestamp",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"trip_id": bson.M{
				"bsonType": []string{"long", "int"},
				"minimum":  1,
			},

			"operation": bson.M{
				"enum": []string{"accept", "complete", "advance"},
			},

			"client_version": bson.M{
				"bsonType": []string{"long", "int"},
			},

			"server_version": bson.M{
				"bsonType": []string{"long", "int"},
			},

			"was_conflict": bson.M{
				"bsonType": "bool",
			},

			"resolution": bson.M{
				"bsonType":  "string",
				"maxLength": 50,
			},

			"details": bson.M{
				"bsonType": "object",
			},

			"timestamp": bson.M{
				"bsonType": "date",
			},
		},
	},
}
