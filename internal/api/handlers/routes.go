package handlers

import "github.com/gofiber/fiber/v2"

type Routes struct {
	Posts      *PostHandler
	Deliveries *DeliveryHandler
	Threads    *ThreadHandler
	Media      *MediaHandler
	Platforms  *PlatformHandler
	Users      *UserHandler
}

// Register mounts the API on an authenticated router.
func (r Routes) Register(api fiber.Router) {
	api.Get("/user/info", r.Users.GetUserInfo)

	api.Post("/posts", r.Posts.CreatePost)
	api.Get("/posts", r.Posts.ListPosts)
	api.Get("/posts/:id", r.Posts.GetPost)
	api.Put("/posts/:id", r.Posts.UpdatePost)
	api.Delete("/posts/:id", r.Posts.RemovePost)
	api.Post("/posts/:id/publish", r.Posts.PublishPost)

	api.Post("/deliveries/:id/publish", r.Deliveries.PublishDelivery)
	api.Post("/deliveries/:id/reset", r.Deliveries.ResetDelivery)
	api.Get("/deliveries/:id/logs", r.Deliveries.ListLogs)

	api.Post("/threads", r.Threads.CreateThread)
	api.Get("/threads", r.Threads.ListThreads)
	api.Get("/threads/:id", r.Threads.GetThread)
	api.Delete("/threads/:id", r.Threads.RemoveThread)
	api.Post("/threads/:id/publish", r.Threads.PublishThread)
	api.Post("/thread-deliveries/:id/reset", r.Deliveries.ResetSegmentDelivery)

	api.Post("/media", r.Media.UploadMedia)

	api.Get("/accounts", r.Platforms.ListSocialAccounts)
	api.Post("/accounts/:id/active", r.Platforms.SetActive)
}
