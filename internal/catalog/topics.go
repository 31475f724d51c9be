package catalog

const (
	TopicProductsFeed = "feed.products"
	TopicOrdersFeed   = "feed.orders"
)

// TopicForCollection maps a store collection to its feed topic.
func TopicForCollection(collection string) string {
	if collection == CollectionOrders {
		return TopicOrdersFeed
	}
	return TopicProductsFeed
}

// Partition key = namespace, so every snapshot for one principal stays ordered.
func PartitionKey(namespace string) []byte { return []byte(namespace) }
